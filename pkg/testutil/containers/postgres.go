//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers Postgres instance with the
// schema already applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

// NewPostgresContainer starts a new Postgres container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("veridoc"),
		tcpostgres.WithUsername("veridoc"),
		tcpostgres.WithPassword("veridoc"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	// Note: We don't register t.Cleanup here because the container is managed
	// by the singleton Manager and shared across test suites. Ryuk handles cleanup.

	return &PostgresContainer{
		Container: container,
		DSN:       dsn,
		DB:        db,
	}
}

// TruncateTables empties the given tables. Use between tests to ensure isolation.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	query := fmt.Sprintf("TRUNCATE TABLE %s CASCADE", strings.Join(tables, ", "))
	if _, err := p.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS document_hashes (
    document_hash       TEXT PRIMARY KEY,
    content_address     TEXT NOT NULL DEFAULT '',
    original_filename   TEXT NOT NULL,
    file_size           BIGINT NOT NULL,
    mime_type           TEXT NOT NULL,
    first_submitter     TEXT NOT NULL,
    first_submission_id TEXT NOT NULL,
    last_submitter      TEXT NOT NULL,
    last_submission_id  TEXT NOT NULL,
    submission_count    INTEGER NOT NULL,
    status              TEXT NOT NULL,
    first_seen_at       TIMESTAMPTZ NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transaction_hashes (
    transaction_hash   TEXT PRIMARY KEY,
    submission_id      TEXT NOT NULL,
    document_hashes    TEXT[] NOT NULL,
    content_digest     TEXT NOT NULL,
    submitter          TEXT NOT NULL,
    confirmed          BOOLEAN NOT NULL,
    confirmation_count INTEGER NOT NULL,
    block_reference    TEXT NOT NULL DEFAULT '',
    recorded_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS forgery_reports (
    id                       TEXT PRIMARY KEY,
    kind                     TEXT NOT NULL,
    severity                 TEXT NOT NULL,
    suspicious_submission_id TEXT NOT NULL,
    original_submission_id   TEXT NOT NULL,
    suspicious_submitter     TEXT NOT NULL,
    original_submitter       TEXT NOT NULL,
    evidence                 JSONB,
    resolved                 BOOLEAN NOT NULL DEFAULT FALSE,
    resolved_by              TEXT,
    resolved_at              TIMESTAMPTZ,
    created_at               TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS access_grants (
    id          TEXT PRIMARY KEY,
    token       TEXT NOT NULL UNIQUE,
    subject_id  TEXT NOT NULL,
    grantee_id  TEXT NOT NULL,
    scope       JSONB NOT NULL,
    purpose     TEXT NOT NULL,
    issued_at   TIMESTAMPTZ NOT NULL,
    expires_at  TIMESTAMPTZ NOT NULL,
    usage_count INTEGER NOT NULL,
    max_usage   INTEGER NOT NULL,
    active      BOOLEAN NOT NULL,
    revoked_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_access_grants_subject ON access_grants (subject_id);

CREATE TABLE IF NOT EXISTS audit_outbox (
    id          TEXT PRIMARY KEY,
    category    TEXT NOT NULL,
    actor_id    TEXT,
    subject     TEXT NOT NULL,
    action      TEXT NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL,
    payload     JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_outbox_actor ON audit_outbox (actor_id, occurred_at);
`
