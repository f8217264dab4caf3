// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package browser

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

// Timings collects how long named sign-in flows take across a test run.
type Timings struct {
	mu      sync.Mutex
	samples map[string][]float64
}

// Record adds one duration for name.
func (t *Timings) Record(name string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.samples == nil {
		t.samples = map[string][]float64{}
	}
	t.samples[name] = append(t.samples[name], float64(d))
}

// Start begins timing name. Calling the returned func records the elapsed time.
func (t *Timings) Start(name string) func() {
	begin := time.Now()
	return func() { t.Record(name, time.Since(begin)) }
}

// Summary describes the recorded durations of one flow.
type Summary struct {
	Name   string
	Count  int
	Mean   time.Duration
	Median time.Duration
	P90    time.Duration
	Max    time.Duration
}

func (s Summary) String() string {
	return fmt.Sprintf("%s: n=%d mean=%s median=%s p90=%s max=%s", s.Name, s.Count, s.Mean, s.Median, s.P90, s.Max)
}

// Summaries returns one Summary per flow name, sorted by name.
func (t *Timings) Summaries() ([]Summary, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.samples))
	for name := range t.samples {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Summary, 0, len(names))
	for _, name := range names {
		data := stats.Float64Data(t.samples[name])
		mean, err := stats.Mean(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		median, err := stats.Median(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		p90, err := stats.PercentileNearestRank(data, 90)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		maxD, err := stats.Max(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, Summary{
			Name:   name,
			Count:  len(data),
			Mean:   time.Duration(mean),
			Median: time.Duration(median),
			P90:    time.Duration(p90),
			Max:    time.Duration(maxD),
		})
	}
	return out, nil
}
