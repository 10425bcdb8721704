package verification

import (
	"context"

	"veridoc/internal/registry"
	dErrors "veridoc/pkg/domain-errors"
)

// RegistryStatusDirectory derives a record's standing from the hash
// registry. A record reference is the registered document hash.
//
// Mapping: a known hash with a clean history is VERIFIED; a hash that has
// been resubmitted is PENDING until an admin resolves the review. Level 2
// means the encrypted package is on file, level 1 hash-only registration.
type RegistryStatusDirectory struct {
	store registry.Store
}

func NewRegistryStatusDirectory(store registry.Store) *RegistryStatusDirectory {
	return &RegistryStatusDirectory{store: store}
}

func (d *RegistryStatusDirectory) StandingOf(ctx context.Context, recordRef string) (RecordStanding, error) {
	record, err := d.store.FindDocument(ctx, recordRef)
	if err != nil {
		return RecordStanding{}, dErrors.Wrap(err, dErrors.CodeNotFound, "record not registered")
	}

	status := StatusVerified
	if record.Status == registry.StatusResubmitted {
		status = StatusPending
	}

	level := 1
	if record.ContentAddress != "" {
		level = 2
	}

	return RecordStanding{
		RecordRef:   recordRef,
		Status:      status,
		Level:       level,
		LastUpdated: record.UpdatedAt,
	}, nil
}
