// Package synthmetrics fabricates dashboard numbers. Nothing here measures
// anything; the generator exists so demo charts have data without ever being
// mistaken for real telemetry.
package synthmetrics

import (
	"math"
	"math/rand"
	"time"
)

// Sample is one synthetic gauge reading.
type Sample struct {
	TS    string  `json:"ts" format:"date-time"`
	Value float64 `json:"value"`
}

// Series is a named synthetic time series.
type Series struct {
	Name      string   `json:"name"`
	Unit      string   `json:"unit"`
	Synthetic bool     `json:"synthetic"`
	Samples   []Sample `json:"samples"`
}

// Generator produces deterministic pseudo-random dashboard series for a
// given seed. The same seed always yields the same numbers.
type Generator struct {
	Seed int64
	Now  func() time.Time
}

func New(seed int64) Generator {
	return Generator{Seed: seed, Now: time.Now}
}

func (g Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

type seriesSpec struct {
	name   string
	unit   string
	base   float64
	spread float64
	wave   float64
}

var specs = []seriesSpec{
	{name: "cpu_utilization", unit: "percent", base: 42, spread: 18, wave: 12},
	{name: "memory_usage", unit: "percent", base: 61, spread: 9, wave: 6},
	{name: "throughput", unit: "docs_per_hour", base: 34, spread: 11, wave: 8},
	{name: "review_queue_depth", unit: "deliverables", base: 7, spread: 4, wave: 3},
}

// Dashboard returns n samples per series at the given interval, ending now.
func (g Generator) Dashboard(n int, interval time.Duration) []Series {
	if n <= 0 {
		n = 24
	}
	if interval <= 0 {
		interval = time.Hour
	}
	end := g.now().UTC().Truncate(time.Minute)
	out := make([]Series, 0, len(specs))
	for i, spec := range specs {
		rng := rand.New(rand.NewSource(g.Seed + int64(i)))
		samples := make([]Sample, 0, n)
		for j := 0; j < n; j++ {
			ts := end.Add(-time.Duration(n-1-j) * interval)
			phase := float64(j) / float64(n) * 2 * math.Pi
			v := spec.base + spec.wave*math.Sin(phase) + (rng.Float64()-0.5)*spec.spread
			if v < 0 {
				v = 0
			}
			samples = append(samples, Sample{
				TS:    ts.Format(time.RFC3339),
				Value: math.Round(v*10) / 10,
			})
		}
		out = append(out, Series{
			Name:      spec.name,
			Unit:      spec.unit,
			Synthetic: true,
			Samples:   samples,
		})
	}
	return out
}
