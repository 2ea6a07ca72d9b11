package invalidation

// Metrics receives channel-level signals.
type Metrics interface {
	Published()
	PublishFailed()
	Received()
	Suppressed()
}

// NoopMetrics does nothing; it is the default Metrics.
type NoopMetrics struct{}

func (NoopMetrics) Published()     {}
func (NoopMetrics) PublishFailed() {}
func (NoopMetrics) Received()      {}
func (NoopMetrics) Suppressed()    {}

var _ Metrics = NoopMetrics{}
