package retrieval

import (
	"context"

	"veridoc/internal/registry"
	id "veridoc/pkg/domain"
	dErrors "veridoc/pkg/domain-errors"
	"veridoc/pkg/platform/middleware/auth"
)

// RegistryOwnerDirectory resolves document ownership from the hash registry:
// the first submitter of a hash owns the document.
type RegistryOwnerDirectory struct {
	store registry.Store
}

func NewRegistryOwnerDirectory(store registry.Store) *RegistryOwnerDirectory {
	return &RegistryOwnerDirectory{store: store}
}

func (d *RegistryOwnerDirectory) OwnerOf(ctx context.Context, documentHash string) (id.UserID, error) {
	record, err := d.store.FindDocument(ctx, documentHash)
	if err != nil {
		return id.UserID{}, dErrors.Wrap(err, dErrors.CodeNotFound, "document not registered")
	}
	return record.FirstSubmitter, nil
}

// ClaimsRoleDirectory reads the requester's role from the request context,
// where the JWT middleware placed it. The userID argument is unused; the
// token that authenticated the request is the source of truth.
type ClaimsRoleDirectory struct{}

func NewClaimsRoleDirectory() *ClaimsRoleDirectory {
	return &ClaimsRoleDirectory{}
}

func (d *ClaimsRoleDirectory) RoleOf(ctx context.Context, _ id.UserID) (Role, error) {
	switch auth.GetRole(ctx) {
	case string(RoleAdmin):
		return RoleAdmin, nil
	case string(RoleVerifier):
		return RoleVerifier, nil
	default:
		return RoleCitizen, nil
	}
}
