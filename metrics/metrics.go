// Package metrics exports cache and rate limiter activity to Prometheus.
//
// The cache and ratelimit packages report through small observer
// interfaces; the observers returned here satisfy them without those
// packages importing Prometheus.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "rawrshaper"

// Metrics holds the collectors registered by [New].
type Metrics struct {
	cacheRequests      *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec
	cacheSwept         *prometheus.CounterVec
	limiterDecisions   *prometheus.CounterVec
	limiterSwept       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. It panics if any
// of them is already registered, like prometheus.MustRegister.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by outcome (hit, miss, expired).",
		}, []string{"cache", "result"}),
		cacheInvalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Entries removed by explicit invalidation, by kind (key, prefix).",
		}, []string{"cache", "kind"}),
		cacheSwept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_swept_total",
			Help:      "Expired entries removed by the background sweeper.",
		}, []string{"cache"}),
		limiterDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limiter decisions (allowed, rejected).",
		}, []string{"limiter", "decision"}),
		limiterSwept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_swept_total",
			Help:      "Stale rate limit windows removed by the sweeper.",
		}, []string{"limiter"}),
	}
	reg.MustRegister(
		m.cacheRequests,
		m.cacheInvalidations,
		m.cacheSwept,
		m.limiterDecisions,
		m.limiterSwept,
	)
	return m
}

// CacheObserver implements cache.Observer for one named cache.
type CacheObserver struct {
	hit, miss, expired prometheus.Counter
	invalidations      *prometheus.CounterVec
	swept              prometheus.Counter
}

// Cache returns an observer labelled with the cache name.
func (m *Metrics) Cache(name string) *CacheObserver {
	return &CacheObserver{
		hit:           m.cacheRequests.WithLabelValues(name, "hit"),
		miss:          m.cacheRequests.WithLabelValues(name, "miss"),
		expired:       m.cacheRequests.WithLabelValues(name, "expired"),
		invalidations: m.cacheInvalidations.MustCurryWith(prometheus.Labels{"cache": name}),
		swept:         m.cacheSwept.WithLabelValues(name),
	}
}

func (o *CacheObserver) Hit()     { o.hit.Inc() }
func (o *CacheObserver) Miss()    { o.miss.Inc() }
func (o *CacheObserver) Expired() { o.expired.Inc() }

func (o *CacheObserver) Invalidated(kind string, n int) {
	o.invalidations.WithLabelValues(kind).Add(float64(n))
}

func (o *CacheObserver) Swept(n int) { o.swept.Add(float64(n)) }

// LimiterObserver implements ratelimit.Observer for one named limiter.
type LimiterObserver struct {
	allowed, rejected, swept prometheus.Counter
}

// Limiter returns an observer labelled with the limiter name.
func (m *Metrics) Limiter(name string) *LimiterObserver {
	return &LimiterObserver{
		allowed:  m.limiterDecisions.WithLabelValues(name, "allowed"),
		rejected: m.limiterDecisions.WithLabelValues(name, "rejected"),
		swept:    m.limiterSwept.WithLabelValues(name),
	}
}

func (o *LimiterObserver) Allowed()    { o.allowed.Inc() }
func (o *LimiterObserver) Rejected()   { o.rejected.Inc() }
func (o *LimiterObserver) Swept(n int) { o.swept.Add(float64(n)) }
