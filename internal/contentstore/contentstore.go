// Package contentstore abstracts the external content-addressed byte store
// (IPFS-style). Bytes go in, a content address comes out; the address is the
// hex content hash, so a fetched blob can always be re-verified against its
// own address.
package contentstore

import (
	"context"

	"veridoc/internal/cryptocore"
)

// Address points at a blob in the store. It equals the hex content hash of
// the stored bytes.
type Address string

// AddressOf computes the address the store would assign to b.
func AddressOf(b []byte) Address {
	return Address(cryptocore.Hash(b).Hex())
}

// Store is the content-addressed storage port.
type Store interface {
	// Put stores bytes and returns their content address. Idempotent: the
	// same bytes always map to the same address.
	Put(ctx context.Context, data []byte) (Address, error)

	// Get fetches bytes by address. Returns sentinel.ErrNotFound for
	// unknown addresses.
	Get(ctx context.Context, addr Address) ([]byte, error)
}
