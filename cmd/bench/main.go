// Command bench simulates a cluster of members sharing one region over the
// in-process hub and reports per-member hit rates. Invalidation traffic is
// exported on the Prometheus endpoint; pprof is optional.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/regioncache/cluster"
	"github.com/IvanBrykalov/regioncache/config"
	"github.com/IvanBrykalov/regioncache/eviction"
	"github.com/IvanBrykalov/regioncache/internal/logging"
	pmet "github.com/IvanBrykalov/regioncache/metrics/prom"
	"github.com/IvanBrykalov/regioncache/region"
	"github.com/IvanBrykalov/regioncache/store"
)

type counters struct {
	reads, hits, writes, applied, txs atomic.Uint64
}

func main() {
	// ---- Flags ----
	var (
		regionName = flag.String("region", "Orders", "region name")
		nodes      = flag.Int("nodes", 3, "number of simulated cluster members")
		size       = flag.Int("size", 100_000, "max entries per member (0 = use -config or unbounded)")
		ttl        = flag.Duration("ttl", 0, "entry time-to-live (0 = none)")
		discipline = flag.String("discipline", "lru", "size eviction discipline: lru | fifo")
		access     = flag.String("access", "read-write", "access type: read-only | nonstrict-read-write | read-write | transactional")
		configPath = flag.String("config", "", "TOML/YAML map configuration (used when -size is 0)")
		shards     = flag.Int("shards", 0, "number of shards (0=auto)")

		workers  = flag.Int("workers", runtime.GOMAXPROCS(0), "worker goroutines per member")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 90, "read percentage [0..100]")
		txPct    = flag.Int("tx", 10, "percentage of writes done under a soft lock")

		keys    = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		verbose = flag.Bool("v", false, "debug logging")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr; empty = disabled")
	)
	flag.Parse()

	log := logging.New(logging.Options{Verbose: *verbose})
	fail := func(msg string, args ...any) {
		log.Error(msg, args...)
		os.Exit(1)
	}

	// ---- pprof / metrics servers (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Info("pprof: serving", "addr", *pprofAddr)
			log.Warn("pprof server stopped", "err", http.ListenAndServe(*pprofAddr, nil))
		}()
	}
	if *metricsAddr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Info("metrics: serving", "addr", *metricsAddr)
			log.Warn("metrics server stopped", "err", http.ListenAndServe(*metricsAddr, nil))
		}()
	}

	at, err := region.ParseAccessType(*access)
	if err != nil {
		fail("bad -access", "err", err)
	}
	var provider config.Provider = config.Unsupported{}
	if *configPath != "" {
		if provider, err = config.Load(*configPath); err != nil {
			fail("load config", "path", *configPath, "err", err)
		}
	}
	var override *eviction.Policy
	if *size > 0 || *ttl > 0 {
		override = &eviction.Policy{MaxSize: *size, TimeToLive: *ttl, Discipline: eviction.Discipline(*discipline)}
	}

	// ---- Cluster ----
	hub := cluster.NewHub()
	topic, err := cluster.TopicFor[string](hub, *regionName)
	if err != nil {
		fail("topic", "err", err)
	}

	var version atomic.Int64 // the "database" row version
	mgr := region.NewManager(log)
	members := make([]*region.Cache[string, string], *nodes)
	for i := range members {
		id := "node-" + strconv.Itoa(i)
		metrics := pmet.New(*regionName, pmet.Options{
			Registerer: prometheus.WrapRegistererWith(prometheus.Labels{"node": id}, prometheus.DefaultRegisterer),
			Namespace:  "regioncache",
			Logger:     log,
		})
		c, err := region.New(*regionName, region.Options[string, string]{
			Access:         at,
			Data:           region.DataDescription{Versioned: true, Comparator: region.OrderedVersions[int64]()},
			Eviction:       override,
			Config:         provider,
			Topic:          topic,
			Membership:     cluster.NamedMember(id),
			Logger:         log.With("node", id),
			StoreMetrics:   metrics,
			ChannelMetrics: metrics,
			Shards:         *shards,
			Loader: func(_ context.Context, k string) (string, error) {
				return "db:" + k + "@" + strconv.FormatInt(version.Load(), 10), nil
			},
		})
		if err != nil {
			fail("region", "node", id, "err", err)
		}
		if err := mgr.Add(memberRegion{c, id}); err != nil {
			fail("register", "node", id, "err", err)
		}
		members[i] = c
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mgr.Close(ctx); err != nil {
			log.Warn("shutdown", "err", err)
		}
	}()

	// ---- Snapshot flags for goroutines ----
	readPctVal, txPctVal := *readPct, *txPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	stats := make([]counters, len(members))
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for n, c := range members {
		for w := 0; w < workersN; w++ {
			id := n*workersN + w
			st := &stats[n]
			g.Go(func() error {
				// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
				localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
				localZipf := rand.NewZipf(localR, *zipfS, *zipfV, keysMax)
				tx := store.TxID("tx-" + strconv.Itoa(id))

				for gctx.Err() == nil {
					k := "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
					if int(localR.Int31n(100)) < readPctVal {
						st.reads.Add(1)
						if _, ok := c.Get(k); ok {
							st.hits.Add(1)
						} else if _, err := c.GetOrLoad(gctx, k); err != nil && gctx.Err() == nil {
							return err
						}
						continue
					}

					st.writes.Add(1)
					ver := version.Add(1)
					v := "v" + strconv.FormatInt(ver, 10)
					if int(localR.Int31n(100)) < txPctVal {
						st.txs.Add(1)
						tok := c.LockItem(k, tx)
						if c.PutLocked(k, v, ver, time.Time{}, tok) {
							st.applied.Add(1)
						}
						c.UnlockItem(k, tok, ver)
					} else if c.Put(k, v, ver, time.Time{}) {
						st.applied.Add(1)
					}
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		fail("workload", "err", err)
	}
	elapsed := time.Since(start)

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	for _, c := range members {
		_ = c.Flush(flushCtx)
	}
	flushCancel()

	// ---- Report ----
	fmt.Printf("region=%s nodes=%d access=%s workers/node=%d keys=%d dur=%v seed=%d\n",
		*regionName, len(members), at, workersN, *keys, elapsed, seedBase)
	if len(members) > 0 {
		p := members[0].Policy()
		fmt.Printf("policy: maxSize=%d ttl=%v discipline=%s source=%s\n",
			p.MaxSize, p.TimeToLive, p.Discipline, members[0].PolicySource())
	}
	var ops uint64
	for i, c := range members {
		s := &stats[i]
		reads, hits := s.reads.Load(), s.hits.Load()
		ops += reads + s.writes.Load()
		hitRate := 0.0
		if reads > 0 {
			hitRate = float64(hits) / float64(reads) * 100
		}
		ss := c.Stats()
		fmt.Printf("node-%d: reads=%d hit-rate=%.2f%% writes=%d applied=%d tx=%d len=%d evictions=%d\n",
			i, reads, hitRate, s.writes.Load(), s.applied.Load(), s.txs.Load(), ss.Entries, ss.Evictions)
	}
	fmt.Printf("ops=%d (%.0f ops/s)\n", ops, float64(ops)/elapsed.Seconds())
}

// memberRegion registers a member's copy of the region under a name that
// is unique within this process.
type memberRegion struct {
	*region.Cache[string, string]
	node string
}

func (m memberRegion) Name() string { return m.Cache.Name() + "@" + m.node }
