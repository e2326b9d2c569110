package cache

// Observer receives cache events. Implementations must be safe for
// concurrent use; the metrics package provides a Prometheus-backed one.
type Observer interface {
	// Hit is called when Get returns a live value.
	Hit()
	// Miss is called when Get finds no entry for the key.
	Miss()
	// Expired is called when Get finds an entry whose TTL has passed.
	Expired()
	// Invalidated is called after Invalidate ("key") or InvalidateByPrefix
	// ("prefix") with the number of entries removed.
	Invalidated(kind string, n int)
	// Swept is called after a sweep with the number of entries removed.
	Swept(n int)
}

// NoopObserver ignores all events.
type NoopObserver struct{}

func (NoopObserver) Hit()                    {}
func (NoopObserver) Miss()                   {}
func (NoopObserver) Expired()                {}
func (NoopObserver) Invalidated(string, int) {}
func (NoopObserver) Swept(int)               {}
