package metrics

import "github.com/prometheus/client_golang/prometheus"

// Label values shared by the session metrics.
const (
	MergeOutcomeMerged = "merged"
	MergeOutcomeEmpty  = "empty"
	MergeOutcomeFailed = "failed"

	MergeListCart     = "cart"
	MergeListWishlist = "wishlist"

	GuestStoreOpRead   = "read"
	GuestStoreOpWrite  = "write"
	GuestStoreOpRemove = "remove"
	GuestStoreOpProbe  = "probe"
)

// SessionMetrics tracks cart/wishlist synchronization health.
// Every method is safe on a nil receiver so callers can leave metrics unwired.
type SessionMetrics struct {
	syncFailures   *prometheus.CounterVec
	rollbacks      *prometheus.CounterVec
	merges         *prometheus.CounterVec
	storeFallbacks *prometheus.CounterVec
	storeBackend   *prometheus.GaugeVec
	activeSessions prometheus.Gauge
}

func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	if reg == nil {
		return &SessionMetrics{}
	}
	m := &SessionMetrics{
		syncFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_sync_failures_total",
			Help:      "Upstream cart or wishlist calls that failed, by operation.",
		}, []string{"op"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_rollbacks_total",
			Help:      "Optimistic cart mutations reverted after an upstream failure.",
		}, []string{"op"}),
		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guest_merges_total",
			Help:      "Guest list merges run on sign-in, by list and outcome.",
		}, []string{"list", "outcome"}),
		storeFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guest_store_fallbacks_total",
			Help:      "Guest store operations served by the in-memory fallback.",
		}, []string{"op"}),
		storeBackend: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "guest_store_backend",
			Help:      "Set to 1 for the guest store backend selected at startup.",
		}, []string{"backend"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Visitor sessions currently held in memory.",
		}),
	}
	reg.MustRegister(m.syncFailures, m.rollbacks, m.merges, m.storeFallbacks, m.storeBackend, m.activeSessions)
	return m
}

func (m *SessionMetrics) IncSyncFailure(op string) {
	if m == nil || m.syncFailures == nil {
		return
	}
	m.syncFailures.WithLabelValues(normalizeLabel(op)).Inc()
}

func (m *SessionMetrics) IncRollback(op string) {
	if m == nil || m.rollbacks == nil {
		return
	}
	m.rollbacks.WithLabelValues(normalizeLabel(op)).Inc()
}

func (m *SessionMetrics) IncMerge(list, outcome string) {
	if m == nil || m.merges == nil {
		return
	}
	m.merges.WithLabelValues(normalizeLabel(list), normalizeLabel(outcome)).Inc()
}

func (m *SessionMetrics) IncStoreFallback(op string) {
	if m == nil || m.storeFallbacks == nil {
		return
	}
	m.storeFallbacks.WithLabelValues(normalizeLabel(op)).Inc()
}

// SetStoreBackend marks backend as the active guest store.
func (m *SessionMetrics) SetStoreBackend(backend string) {
	if m == nil || m.storeBackend == nil {
		return
	}
	m.storeBackend.Reset()
	m.storeBackend.WithLabelValues(normalizeLabel(backend)).Set(1)
}

func (m *SessionMetrics) SetActiveSessions(n int) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
