package prom

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/IvanBrykalov/regioncache/internal/logging"
	"github.com/IvanBrykalov/regioncache/store"
)

func TestAdapter_Counts(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	a := New("Orders", Options{Registerer: reg, Namespace: "regioncache"})

	a.Hit()
	a.Hit()
	a.Miss()
	a.Evict(store.EvictSize)
	a.Evict(store.EvictTTL)
	a.Evict(store.EvictTTL)
	a.Reject(store.RejectStale)
	a.Size(7)
	a.Published()
	a.PublishFailed()
	a.Received()
	a.Suppressed()
	a.Suppressed()

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"hits", testutil.ToFloat64(a.hits), 2},
		{"misses", testutil.ToFloat64(a.misses), 1},
		{"evict size", testutil.ToFloat64(a.evicts.WithLabelValues("size")), 1},
		{"evict ttl", testutil.ToFloat64(a.evicts.WithLabelValues("ttl")), 2},
		{"reject stale", testutil.ToFloat64(a.rejects.WithLabelValues("stale")), 1},
		{"size", testutil.ToFloat64(a.size), 7},
		{"published", testutil.ToFloat64(a.published), 1},
		{"publish failed", testutil.ToFloat64(a.pubFailed), 1},
		{"received", testutil.ToFloat64(a.received), 1},
		{"suppressed", testutil.ToFloat64(a.suppressed), 2},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s=%v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestAdapter_RegionsShareRegistry(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	orders := New("Orders", Options{Registerer: reg})
	customers := New("Customers", Options{Registerer: reg})
	orders.Hit()
	customers.Hit()
	customers.Hit()

	const want = `
# HELP hits_total Region cache hits
# TYPE hits_total counter
hits_total{region="Customers"} 2
hits_total{region="Orders"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "hits_total"); err != nil {
		t.Fatal(err)
	}
}

func TestLabelValue_Fallback(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := logging.New(logging.Options{Verbose: true, Writer: &buf})

	if got := LabelValue("Orders", log); got != "Orders" {
		t.Fatalf("LabelValue(Orders)=%q", got)
	}
	if buf.Len() != 0 {
		t.Fatalf("valid name logged: %s", buf.String())
	}
	for _, bad := range []string{"", "  ", "bad\xff\xfename"} {
		if got := LabelValue(bad, log); got != UnknownRegion {
			t.Errorf("LabelValue(%q)=%q, want %q", bad, got, UnknownRegion)
		}
	}
	if !strings.Contains(buf.String(), "level=DEBUG") {
		t.Fatalf("fallback not logged at debug: %s", buf.String())
	}

	reg := prometheus.NewRegistry()
	a := New("bad\xff", Options{Registerer: reg})
	a.Hit()
	if err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP hits_total Region cache hits
# TYPE hits_total counter
hits_total{region="unknown"} 1
`), "hits_total"); err != nil {
		t.Fatal(err)
	}
}
