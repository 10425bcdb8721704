package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the integrity and access
// control core. All counters are monotonically increasing totals.
type Metrics struct {
	DocumentsRegistered  prometheus.Counter
	DuplicateSubmissions prometheus.Counter
	ForgeriesDetected    *prometheus.CounterVec
	TransactionsRecorded prometheus.Counter
	GrantsIssued         prometheus.Counter
	GrantsConsumed       prometheus.Counter
	GrantsRevoked        prometheus.Counter
	Retrievals           *prometheus.CounterVec
	IntegrityFailures    *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on the given registerer. Tests pass a fresh
// registry so repeated construction does not collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DocumentsRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "veridoc_documents_registered_total",
			Help: "Total first-seen document hashes registered.",
		}),
		DuplicateSubmissions: factory.NewCounter(prometheus.CounterOpts{
			Name: "veridoc_duplicate_submissions_total",
			Help: "Total resubmissions of an already registered hash.",
		}),
		ForgeriesDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "veridoc_forgeries_detected_total",
			Help: "Total forgery reports created, by kind.",
		}, []string{"kind"}),
		TransactionsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "veridoc_transactions_recorded_total",
			Help: "Total first-seen transaction hashes recorded.",
		}),
		GrantsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "veridoc_grants_issued_total",
			Help: "Total access grants issued.",
		}),
		GrantsConsumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "veridoc_grants_consumed_total",
			Help: "Total successful grant consumptions.",
		}),
		GrantsRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "veridoc_grants_revoked_total",
			Help: "Total grants revoked by their subject.",
		}),
		Retrievals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "veridoc_document_retrievals_total",
			Help: "Total document retrieval attempts, by outcome.",
		}, []string{"outcome"}),
		IntegrityFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "veridoc_integrity_failures_total",
			Help: "Total cryptographic integrity failures, by stage.",
		}, []string{"stage"}),
	}
}
