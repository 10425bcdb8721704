package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"veridoc/internal/grants"
	id "veridoc/pkg/domain"
	"veridoc/pkg/platform/sentinel"
	txcontext "veridoc/pkg/platform/tx"
)

// PostgresStore persists grants in PostgreSQL. Consume is one conditional
// UPDATE: the usage check and the increment happen in the same statement, so
// concurrent consumers near the max_usage boundary serialize on the row and
// cannot both get through.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const grantColumns = `
	id, token, subject_id, grantee_id, scope, purpose,
	issued_at, expires_at, usage_count, max_usage, active, revoked_at`

func (s *PostgresStore) Create(ctx context.Context, grant *grants.AccessGrant) error {
	scope, err := json.Marshal(grant.Scope)
	if err != nil {
		return fmt.Errorf("marshal grant scope: %w", err)
	}
	query := `
		INSERT INTO access_grants (` + grantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.querier(ctx).ExecContext(ctx, query,
		grant.ID.String(), grant.Token, grant.SubjectID.String(), grant.GranteeID,
		scope, grant.Purpose, grant.IssuedAt, grant.ExpiresAt,
		grant.UsageCount, grant.MaxUsage, grant.Active, grant.RevokedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("grant token: %w", sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create grant: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*grants.AccessGrant, error) {
	query := `SELECT` + grantColumns + ` FROM access_grants WHERE token = $1`
	grant, err := scanGrant(s.querier(ctx).QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("grant: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find grant: %w", err)
	}
	return grant, nil
}

func (s *PostgresStore) Consume(ctx context.Context, token string, now time.Time) (*grants.AccessGrant, error) {
	query := `
		UPDATE access_grants SET usage_count = usage_count + 1
		WHERE token = $1
		  AND active
		  AND expires_at > $2
		  AND usage_count < max_usage
		RETURNING` + grantColumns
	grant, err := scanGrant(s.querier(ctx).QueryRowContext(ctx, query, token, now))
	if err == nil {
		return grant, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("consume grant: %w", err)
	}

	// The conditional UPDATE matched nothing; re-read to say why.
	current, ferr := s.FindByToken(ctx, token)
	if ferr != nil {
		return nil, ferr
	}
	switch {
	case !current.Active:
		return nil, fmt.Errorf("grant: %w", sentinel.ErrRevoked)
	case !now.Before(current.ExpiresAt):
		return nil, fmt.Errorf("grant: %w", sentinel.ErrExpired)
	default:
		return nil, fmt.Errorf("grant: %w", sentinel.ErrExhausted)
	}
}

func (s *PostgresStore) Revoke(ctx context.Context, token string, now time.Time) error {
	query := `
		UPDATE access_grants SET active = FALSE, revoked_at = $2
		WHERE token = $1 AND active
	`
	res, err := s.querier(ctx).ExecContext(ctx, query, token, now)
	if err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	if affected == 0 {
		// Unknown token or already revoked; only the former is an error.
		if _, err := s.FindByToken(ctx, token); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject id.UserID) ([]*grants.AccessGrant, error) {
	query := `SELECT` + grantColumns + ` FROM access_grants WHERE subject_id = $1 ORDER BY issued_at DESC`
	rows, err := s.querier(ctx).QueryContext(ctx, query, subject.String())
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var out []*grants.AccessGrant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("list grants: %w", err)
		}
		out = append(out, grant)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (*grants.AccessGrant, error) {
	var (
		grant              grants.AccessGrant
		grantID, subjectID string
		scope              []byte
		revokedAt          sql.NullTime
	)
	err := row.Scan(&grantID, &grant.Token, &subjectID, &grant.GranteeID,
		&scope, &grant.Purpose, &grant.IssuedAt, &grant.ExpiresAt,
		&grant.UsageCount, &grant.MaxUsage, &grant.Active, &revokedAt)
	if err != nil {
		return nil, err
	}
	if grant.ID, err = id.ParseGrantID(grantID); err != nil {
		return nil, err
	}
	if grant.SubjectID, err = id.ParseUserID(subjectID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(scope, &grant.Scope); err != nil {
		return nil, fmt.Errorf("unmarshal grant scope: %w", err)
	}
	if revokedAt.Valid {
		grant.RevokedAt = &revokedAt.Time
	}
	return &grant, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
