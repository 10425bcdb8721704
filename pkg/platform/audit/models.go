// Package audit defines the append-only audit event model and the sinks it
// fans out to. Events are emitted from domain logic on both success and
// denial paths; duplicate entries are harmless (at-least-once).
package audit

import (
	"context"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	id "veridoc/pkg/domain"
	"veridoc/pkg/platform/middleware/device"
)

// EventCategory classifies audit events by their primary purpose. Categories
// drive retention and routing: integrity evidence must outlive operational
// noise.
type EventCategory string

const (
	// CategoryIntegrity covers tamper and forgery evidence. Long retention,
	// feeds the human review workflow.
	CategoryIntegrity EventCategory = "integrity"

	// CategorySecurity covers authorization outcomes: grant usage, access
	// denials, revocations.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	Actor     id.UserID // requesting user, when known
	Subject   string    // resource acted on: document hash, grant id, record ref
	Action    string
	Purpose   string
	Decision  string // "allow" / "deny", empty for pure record events
	Reason    string
	RequestID string // correlation id from HTTP request context
	Device    string // user agent summary captured by transport middleware
}

// EnrichFromContext fills RequestID and Device from values the transport
// middleware stashed in the request context. Fields already set are left
// alone so callers can override.
func (e *Event) EnrichFromContext(ctx context.Context) {
	if e.RequestID == "" {
		e.RequestID = chimw.GetReqID(ctx)
	}
	if e.Device == "" {
		e.Device = device.GetDeviceName(ctx)
	}
}

// Action constants. The category map below is the source of truth for
// routing; add new actions there too.
const (
	ActionDocumentRegistered  = "document_registered"
	ActionDuplicateSubmission = "duplicate_submission"
	ActionForgeryDetected     = "forgery_detected"
	ActionTransactionRecorded = "transaction_recorded"
	ActionTransactionReplayed = "transaction_replayed"
	ActionGrantIssued         = "grant_issued"
	ActionGrantConsumed       = "grant_consumed"
	ActionGrantRevoked        = "grant_revoked"
	ActionDocumentRetrieved   = "document_retrieved"
	ActionAccessDenied        = "access_denied"
	ActionStatusVerified      = "status_verified"
	ActionIntegrityViolation  = "integrity_violation"
	ActionReportResolved      = "report_resolved"
)

var eventCategories = map[string]EventCategory{
	ActionDocumentRegistered:  CategoryOperations,
	ActionDuplicateSubmission: CategoryIntegrity,
	ActionForgeryDetected:     CategoryIntegrity,
	ActionTransactionRecorded: CategoryOperations,
	ActionTransactionReplayed: CategoryIntegrity,
	ActionGrantIssued:         CategorySecurity,
	ActionGrantConsumed:       CategorySecurity,
	ActionGrantRevoked:        CategorySecurity,
	ActionDocumentRetrieved:   CategorySecurity,
	ActionAccessDenied:        CategorySecurity,
	ActionStatusVerified:      CategorySecurity,
	ActionIntegrityViolation:  CategoryIntegrity,
	ActionReportResolved:      CategoryIntegrity,
}

// CategoryOf maps an action to its event category. Unknown actions route to
// operations so nothing gets dropped.
func CategoryOf(action string) EventCategory {
	if c, ok := eventCategories[action]; ok {
		return c
	}
	return CategoryOperations
}

// Publisher emits audit events for security-relevant operations.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Store persists audit events. Append-only; there is no delete.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByActor(ctx context.Context, actor id.UserID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// StorePublisher adapts a Store into a synchronous Publisher. Used in wiring
// where the channel worker is not running (tests, CLI tools).
type StorePublisher struct {
	store Store
}

func NewStorePublisher(store Store) *StorePublisher {
	return &StorePublisher{store: store}
}

func (p *StorePublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.store.Append(ctx, event)
}
