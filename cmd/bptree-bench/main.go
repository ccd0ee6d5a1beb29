// Command bptree-bench drives the paged B+tree (and, for comparison, a
// Pebble-backed baseline) through a load phase and a set of mixed-operation
// workloads, recording latency and memory to CSV and rendering a latency
// chart. It also exposes the page manager's Prometheus metrics over HTTP for
// the duration of the run.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wingdb/bptree/bptree"
	"github.com/wingdb/bptree/internal/bench"
	"github.com/wingdb/bptree/internal/bench/lsmref"
	"github.com/wingdb/bptree/pager"
)

func main() {
	dir, err := os.MkdirTemp("", "bptree-bench-*")
	if err != nil {
		log.Fatalf("mktemp: %v", err)
	}
	defer os.RemoveAll(dir)

	f, err := os.Create("bench_results.csv")
	if err != nil {
		log.Fatalf("create csv: %v", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	w.Write([]string{"Structure", "Config", "Operation", "LatencyNs", "MemMB", "HeapObjects"})

	cacheSizes := []int{64, 512, 4096}
	const scale = 50000

	var allResults []BenchResult

	for _, cacheSize := range cacheSizes {
		pm, err := pager.Open(filepath.Join(dir, fmt.Sprintf("bptree-%d.db", cacheSize)), cacheSize)
		if err != nil {
			log.Fatalf("pager.Open: %v", err)
		}
		stopMetrics := serveMetrics(pm, 9090+cacheSize%100)

		tree, err := bptree.Create(pm, bptree.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))))
		if err != nil {
			log.Fatalf("bptree.Create: %v", err)
		}
		idx := bench.NewTreeIndex(tree)
		results := runSuite(w, "BPlusTree", strconv.Itoa(cacheSize), idx, scale)
		allResults = append(allResults, results...)

		stopMetrics()
		pm.Close()
	}

	lsmThresholds := []int{1000, 10000}
	for _, threshold := range lsmThresholds {
		lsmDir := filepath.Join(dir, fmt.Sprintf("lsm-%d", threshold))
		lsm, err := lsmref.Open(lsmDir)
		if err != nil {
			log.Fatalf("lsmref.Open: %v", err)
		}
		results := runSuite(w, "LSM-Tree", strconv.Itoa(threshold), lsm, scale)
		allResults = append(allResults, results...)
		lsm.Close()
	}

	w.Flush()
	if err := renderLatencyChart("bench_results.png", allResults); err != nil {
		log.Printf("chart render: %v", err)
	}
	fmt.Println("Benchmark complete: bench_results.csv, bench_results.png")
}

// serveMetrics mounts pm's Prometheus registry on an HTTP server for the
// duration of one suite, returning a function that shuts it down.
func serveMetrics(pm *pager.Pager, port int) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(pm.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func runSuite(w *csv.Writer, name, config string, idx bench.Index, n int) []BenchResult {
	fmt.Printf("Testing %s (Config: %s)\n", name, config)
	var out []BenchResult

	start := time.Now()
	for k := 0; k < n; k++ {
		key := []byte(fmt.Sprintf("key-%08d", k))
		if err := idx.Insert(key, []byte("v")); err != nil {
			log.Fatalf("insert: %v", err)
		}
	}
	insertLatency := time.Since(start).Nanoseconds() / int64(n)

	stats := getDetailedMem()
	r := BenchResult{name, config, "Footprint_SteadyState", insertLatency, stats.AllocMB, stats.HeapObjects}
	record(w, r)
	out = append(out, r)

	start = time.Now()
	executeWorkload(idx, OLTP, n/2)
	r = BenchResult{name, config, "Workload_OLTP", time.Since(start).Nanoseconds() / int64(n/2), getDetailedMem().AllocMB, 0}
	record(w, r)
	out = append(out, r)

	start = time.Now()
	executeWorkload(idx, OLAP, n/2)
	r = BenchResult{name, config, "Workload_OLAP", time.Since(start).Nanoseconds() / int64(n/2), getDetailedMem().AllocMB, 0}
	record(w, r)
	out = append(out, r)

	start = time.Now()
	executeWorkload(idx, Reporting, 100)
	r = BenchResult{name, config, "Workload_Range", time.Since(start).Nanoseconds() / 100, getDetailedMem().AllocMB, 0}
	record(w, r)
	out = append(out, r)

	return out
}
