// Package retrieval gates access to stored document packages. A request is
// authorized when the requester owns the document, holds a privileged role,
// or presents a valid capability token whose scope covers the document.
package retrieval

import (
	"context"

	"veridoc/internal/contentstore"
	"veridoc/internal/grants"
	id "veridoc/pkg/domain"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks RoleDirectory,OwnerDirectory,GrantConsumer,ContentStore

// Role is the closed set of requester roles the gateway recognizes.
type Role string

const (
	RoleCitizen  Role = "citizen"
	RoleVerifier Role = "verifier"
	RoleAdmin    Role = "admin"
)

// Privileged reports whether the role may retrieve documents it does not own
// without a capability token.
func (r Role) Privileged() bool {
	return r == RoleVerifier || r == RoleAdmin
}

// RoleDirectory resolves the role of a requester.
type RoleDirectory interface {
	RoleOf(ctx context.Context, userID id.UserID) (Role, error)
}

// OwnerDirectory resolves who owns a stored document.
type OwnerDirectory interface {
	OwnerOf(ctx context.Context, documentHash string) (id.UserID, error)
}

// GrantConsumer burns one use of a capability token and returns the grant.
type GrantConsumer interface {
	Consume(ctx context.Context, token string) (*grants.AccessGrant, error)
}

// ContentStore fetches package bytes by content address.
type ContentStore interface {
	Get(ctx context.Context, addr contentstore.Address) ([]byte, error)
}
