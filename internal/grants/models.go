// Package grants issues and enforces capability tokens: unguessable,
// scoped, usage-limited, time-bounded access grants that organizations use
// to query a citizen's verification state without authenticating as the
// citizen.
package grants

import (
	"time"

	id "veridoc/pkg/domain"
)

// Capability is one action a grant authorizes.
type Capability string

const (
	CapabilityRead     Capability = "read"
	CapabilityVerify   Capability = "verify"
	CapabilityDownload Capability = "download"
)

// Scope bounds what a grant can touch: one verification record reference
// and/or a set of document hashes, with explicit capability flags.
type Scope struct {
	RecordRef    string       `json:"record_ref,omitempty"`
	DocumentIDs  []string     `json:"document_ids,omitempty"`
	Capabilities []Capability `json:"capabilities"`
}

// Allows reports whether the scope includes a capability.
func (s Scope) Allows(c Capability) bool {
	for _, have := range s.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// CoversDocument reports whether a document hash is inside the scope.
func (s Scope) CoversDocument(documentHash string) bool {
	for _, doc := range s.DocumentIDs {
		if doc == documentHash {
			return true
		}
	}
	return false
}

// CoversRecord reports whether the scope is bound to the given record.
func (s Scope) CoversRecord(recordRef string) bool {
	return s.RecordRef != "" && s.RecordRef == recordRef
}

// AccessGrant is one issued capability token. Usable only while
// active && now < ExpiresAt && UsageCount < MaxUsage. UsageCount moves
// monotonically and atomically; revocation is one-way.
type AccessGrant struct {
	ID         id.GrantID
	Token      string // high-entropy, unique, unguessable; the secret itself
	SubjectID  id.UserID
	GranteeID  string // organization identifier
	Scope      Scope
	Purpose    string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	UsageCount int
	MaxUsage   int
	Active     bool
	RevokedAt  *time.Time
}

// Usable reports whether the grant would currently admit one more use.
// Stores enforce this atomically; this helper exists for display surfaces.
func (g *AccessGrant) Usable(now time.Time) bool {
	return g.Active && now.Before(g.ExpiresAt) && g.UsageCount < g.MaxUsage
}
