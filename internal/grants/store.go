package grants

import (
	"context"
	"time"

	id "veridoc/pkg/domain"
)

// Store persists access grants. Consume must be a single atomic
// increment-and-check: two concurrent uses at the max_usage boundary must
// not both pass. Implementations signal terminal states with sentinels:
// sentinel.ErrNotFound, sentinel.ErrExpired, sentinel.ErrExhausted,
// sentinel.ErrRevoked.
type Store interface {
	Create(ctx context.Context, grant *AccessGrant) error

	// FindByToken returns the grant without consuming a use.
	FindByToken(ctx context.Context, token string) (*AccessGrant, error)

	// Consume atomically increments the usage counter if and only if the
	// grant is active, unexpired, and under its usage limit, returning the
	// grant as of after the increment.
	Consume(ctx context.Context, token string, now time.Time) (*AccessGrant, error)

	// Revoke flips active to false. Idempotent; revoking a revoked grant is
	// a no-op.
	Revoke(ctx context.Context, token string, now time.Time) error

	// ListBySubject returns all grants issued over a subject's resources,
	// newest first.
	ListBySubject(ctx context.Context, subject id.UserID) ([]*AccessGrant, error)
}
