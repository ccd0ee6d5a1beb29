package main

import (
	"encoding/csv"
	"runtime"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// BenchResult is one recorded (structure, config, operation) latency/memory
// sample.
type BenchResult struct {
	Name      string
	Config    string
	Operation string
	LatencyNs int64
	MemMB     uint64
	Objects   uint64
}

// MemoryStats snapshots the runtime's live-heap state.
type MemoryStats struct {
	AllocMB      uint64
	TotalAllocMB uint64
	HeapObjects  uint64
}

// getDetailedMem forces a GC pass first so the sample reflects live data
// rather than garbage awaiting collection.
func getDetailedMem() MemoryStats {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	return MemoryStats{
		AllocMB:      m.Alloc / 1024 / 1024,
		TotalAllocMB: m.TotalAlloc / 1024 / 1024,
		HeapObjects:  m.HeapObjects,
	}
}

func record(w *csv.Writer, res BenchResult) {
	w.Write([]string{
		res.Name,
		res.Config,
		res.Operation,
		strconv.FormatInt(res.LatencyNs, 10),
		strconv.FormatUint(res.MemMB, 10),
		strconv.FormatUint(res.Objects, 10),
	})
}

// renderLatencyChart draws one latency bar chart with a bar per recorded
// (structure, config, operation) result and saves it as a PNG next to the
// CSV output.
func renderLatencyChart(path string, results []BenchResult) error {
	p := plot.New()
	p.Title.Text = "Operation latency by structure"
	p.Y.Label.Text = "ns/op"

	values := make(plotter.Values, len(results))
	labels := make([]string, len(results))
	for i, r := range results {
		values[i] = float64(r.LatencyNs)
		labels[i] = r.Name + "/" + r.Config + "/" + r.Operation
	}

	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return err
	}
	p.Add(bars)
	p.NominalX(labels...)

	return p.Save(10*vg.Inch, 5*vg.Inch, path)
}
