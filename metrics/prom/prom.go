// Package prom exports region metrics to Prometheus. One Adapter serves
// one region: it implements both store.Metrics and invalidation.Metrics,
// and every series carries a constant "region" label.
package prom

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/regioncache/internal/logging"
	"github.com/IvanBrykalov/regioncache/invalidation"
	"github.com/IvanBrykalov/regioncache/store"
)

// UnknownRegion replaces region names that cannot be used as label values.
const UnknownRegion = "unknown"

// Adapter implements store.Metrics and invalidation.Metrics.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	evicts  *prometheus.CounterVec
	rejects *prometheus.CounterVec
	size    prometheus.Gauge

	published  prometheus.Counter
	pubFailed  prometheus.Counter
	received   prometheus.Counter
	suppressed prometheus.Counter
}

// Options configures New.
type Options struct {
	// Registerer defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Namespace and Subsystem prefix every metric name.
	Namespace string
	Subsystem string
	Logger    *slog.Logger
}

// New registers the metrics of region. Adapters for different regions may
// share a registerer; the region label keeps their series apart.
func New(region string, opt Options) *Adapter {
	reg := opt.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := prometheus.Labels{"region": LabelValue(region, logging.OrDiscard(opt.Logger))}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opt.Namespace,
			Subsystem:   opt.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}
	counterVec := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opt.Namespace,
			Subsystem:   opt.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, []string{"reason"})
	}

	a := &Adapter{
		hits:    counter("hits_total", "Region cache hits"),
		misses:  counter("misses_total", "Region cache misses"),
		evicts:  counterVec("evictions_total", "Region cache evictions by reason"),
		rejects: counterVec("rejected_writes_total", "Writes not applied, by reason"),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opt.Namespace,
			Subsystem:   opt.Subsystem,
			Name:        "size_entries",
			Help:        "Number of resident entries",
			ConstLabels: labels,
		}),
		published:  counter("invalidations_published_total", "Invalidations handed to the topic"),
		pubFailed:  counter("invalidations_publish_failed_total", "Invalidations dropped or failed to publish"),
		received:   counter("invalidations_received_total", "Invalidations received from peers"),
		suppressed: counter("invalidations_suppressed_total", "Own invalidations echoed back and ignored"),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.rejects, a.size,
		a.published, a.pubFailed, a.received, a.suppressed)
	return a
}

// LabelValue returns region when it is usable as a label value and
// UnknownRegion otherwise. The fallback is logged at debug level.
func LabelValue(region string, log *slog.Logger) string {
	if strings.TrimSpace(region) != "" && utf8.ValidString(region) {
		return region
	}
	log.Debug("region name is not a valid label value; using fallback",
		"fallback", UnknownRegion, "raw", []byte(region))
	return UnknownRegion
}

func (a *Adapter) Hit()  { a.hits.Inc() }
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r store.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Reject increments the rejected-write counter with a reason label.
func (a *Adapter) Reject(r store.RejectReason) {
	a.rejects.WithLabelValues(r.String()).Inc()
}

// Size updates the resident entries gauge.
func (a *Adapter) Size(entries int) { a.size.Set(float64(entries)) }

func (a *Adapter) Published()     { a.published.Inc() }
func (a *Adapter) PublishFailed() { a.pubFailed.Inc() }
func (a *Adapter) Received()      { a.received.Inc() }
func (a *Adapter) Suppressed()    { a.suppressed.Inc() }

var (
	_ store.Metrics        = (*Adapter)(nil)
	_ invalidation.Metrics = (*Adapter)(nil)
)
