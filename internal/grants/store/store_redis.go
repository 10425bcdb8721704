package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"veridoc/internal/grants"
	id "veridoc/pkg/domain"
	"veridoc/pkg/platform/sentinel"
)

// RedisStore persists grants in Redis. The grant body lives as JSON inside a
// hash alongside the mutable counter fields; Consume runs a Lua script so
// the check and the increment execute atomically on the server.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func grantKey(token string) string { return "grant:" + token }

func subjectKey(subject id.UserID) string { return "grants:subject:" + subject.String() }

// consumeScript classifies the grant state and increments the usage counter
// in one server-side step. Returns the new usage count on success or a
// state marker string.
var consumeScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
if redis.call('EXISTS', key) == 0 then
  return 'not_found'
end
if redis.call('HGET', key, 'active') ~= '1' then
  return 'revoked'
end
if now >= tonumber(redis.call('HGET', key, 'expires_at')) then
  return 'expired'
end
local usage = tonumber(redis.call('HGET', key, 'usage_count'))
local max = tonumber(redis.call('HGET', key, 'max_usage'))
if usage >= max then
  return 'exhausted'
end
return redis.call('HINCRBY', key, 'usage_count', 1)
`)

func (s *RedisStore) Create(ctx context.Context, grant *grants.AccessGrant) error {
	body, err := json.Marshal(redisGrant(grant))
	if err != nil {
		return fmt.Errorf("marshal grant: %w", err)
	}

	key := grantKey(grant.Token)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check grant existence: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("grant token: %w", sentinel.ErrConflict)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"data", body,
		"active", boolFlag(grant.Active),
		"expires_at", grant.ExpiresAt.Unix(),
		"usage_count", grant.UsageCount,
		"max_usage", grant.MaxUsage,
	)
	pipe.SAdd(ctx, subjectKey(grant.SubjectID), grant.Token)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create grant: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByToken(ctx context.Context, token string) (*grants.AccessGrant, error) {
	fields, err := s.client.HGetAll(ctx, grantKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("find grant: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("grant: %w", sentinel.ErrNotFound)
	}
	return grantFromFields(fields)
}

func (s *RedisStore) Consume(ctx context.Context, token string, now time.Time) (*grants.AccessGrant, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{grantKey(token)}, now.Unix()).Result()
	if err != nil {
		return nil, fmt.Errorf("consume grant: %w", err)
	}
	switch v := res.(type) {
	case string:
		switch v {
		case "not_found":
			return nil, fmt.Errorf("grant: %w", sentinel.ErrNotFound)
		case "revoked":
			return nil, fmt.Errorf("grant: %w", sentinel.ErrRevoked)
		case "expired":
			return nil, fmt.Errorf("grant: %w", sentinel.ErrExpired)
		case "exhausted":
			return nil, fmt.Errorf("grant: %w", sentinel.ErrExhausted)
		default:
			return nil, fmt.Errorf("consume grant: unexpected script result %q", v)
		}
	case int64:
		grant, err := s.FindByToken(ctx, token)
		if err != nil {
			return nil, err
		}
		grant.UsageCount = int(v)
		return grant, nil
	default:
		return nil, fmt.Errorf("consume grant: unexpected script result type %T", res)
	}
}

func (s *RedisStore) Revoke(ctx context.Context, token string, now time.Time) error {
	grant, err := s.FindByToken(ctx, token)
	if err != nil {
		return err
	}
	if !grant.Active {
		return nil
	}
	grant.Active = false
	grant.RevokedAt = &now

	body, err := json.Marshal(redisGrant(grant))
	if err != nil {
		return fmt.Errorf("marshal grant: %w", err)
	}
	if err := s.client.HSet(ctx, grantKey(token), "data", body, "active", "0").Err(); err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	return nil
}

func (s *RedisStore) ListBySubject(ctx context.Context, subject id.UserID) ([]*grants.AccessGrant, error) {
	tokens, err := s.client.SMembers(ctx, subjectKey(subject)).Result()
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	out := make([]*grants.AccessGrant, 0, len(tokens))
	for _, token := range tokens {
		grant, err := s.FindByToken(ctx, token)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, grant)
	}
	return out, nil
}

// storedGrant is the JSON body kept in the hash's data field. Counter and
// activity flags are mirrored as hash fields so the Lua script can read
// them without parsing JSON.
type storedGrant struct {
	ID        string       `json:"id"`
	Token     string       `json:"token"`
	SubjectID string       `json:"subject_id"`
	GranteeID string       `json:"grantee_id"`
	Scope     grants.Scope `json:"scope"`
	Purpose   string       `json:"purpose"`
	IssuedAt  time.Time    `json:"issued_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	MaxUsage  int          `json:"max_usage"`
	RevokedAt *time.Time   `json:"revoked_at,omitempty"`
}

func redisGrant(g *grants.AccessGrant) storedGrant {
	return storedGrant{
		ID:        g.ID.String(),
		Token:     g.Token,
		SubjectID: g.SubjectID.String(),
		GranteeID: g.GranteeID,
		Scope:     g.Scope,
		Purpose:   g.Purpose,
		IssuedAt:  g.IssuedAt,
		ExpiresAt: g.ExpiresAt,
		MaxUsage:  g.MaxUsage,
		RevokedAt: g.RevokedAt,
	}
}

func grantFromFields(fields map[string]string) (*grants.AccessGrant, error) {
	var stored storedGrant
	if err := json.Unmarshal([]byte(fields["data"]), &stored); err != nil {
		return nil, fmt.Errorf("unmarshal grant: %w", err)
	}
	grant := &grants.AccessGrant{
		Token:     stored.Token,
		GranteeID: stored.GranteeID,
		Scope:     stored.Scope,
		Purpose:   stored.Purpose,
		IssuedAt:  stored.IssuedAt,
		ExpiresAt: stored.ExpiresAt,
		MaxUsage:  stored.MaxUsage,
		RevokedAt: stored.RevokedAt,
		Active:    fields["active"] == "1",
	}
	var err error
	if grant.ID, err = id.ParseGrantID(stored.ID); err != nil {
		return nil, err
	}
	if grant.SubjectID, err = id.ParseUserID(stored.SubjectID); err != nil {
		return nil, err
	}
	if grant.UsageCount, err = strconv.Atoi(fields["usage_count"]); err != nil {
		return nil, fmt.Errorf("parse usage count: %w", err)
	}
	return grant, nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
