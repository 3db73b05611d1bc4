// Package loadtest provides a goroutine-safe collector that aggregates
// request latencies and response codes from many load test workers and
// prints a summary with percentile distributions.
package loadtest

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"
)

// Collector aggregates results from concurrent workers.
type Collector struct {
	mu        sync.Mutex
	latencies []time.Duration
	statuses  map[int]int
	errors    int
	startTime time.Time
}

// NewCollector creates a Collector with the start time set to now.
func NewCollector() *Collector {
	return &Collector{
		statuses:  make(map[int]int),
		startTime: time.Now(),
	}
}

// AddResponse records a completed request.
func (c *Collector) AddResponse(status int, d time.Duration) {
	c.mu.Lock()
	c.latencies = append(c.latencies, d)
	c.statuses[status]++
	c.mu.Unlock()
}

// AddError records a request that never produced a response.
func (c *Collector) AddError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// Count returns the number of completed requests for status.
func (c *Collector) Count(status int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statuses[status]
}

// Total returns the number of completed requests.
func (c *Collector) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.latencies)
}

// ErrorCount returns the number of transport errors.
func (c *Collector) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors
}

// Percentiles summarizes a latency sample.
type Percentiles struct {
	N                       int
	Avg, P50, P95, P99, Max time.Duration
}

// Latencies returns the percentile distribution of recorded latencies.
func (c *Collector) Latencies() Percentiles {
	c.mu.Lock()
	defer c.mu.Unlock()
	return percentiles(c.latencies)
}

// Report writes a formatted summary to w.
func (c *Collector) Report(w io.Writer) {
	c.mu.Lock()
	elapsed := time.Since(c.startTime)
	total := len(c.latencies)
	errs := c.errors
	codes := make([]int, 0, len(c.statuses))
	for code := range c.statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	counts := make([]int, len(codes))
	for i, code := range codes {
		counts[i] = c.statuses[code]
	}
	p := percentiles(c.latencies)
	c.mu.Unlock()

	fmt.Fprintln(w, "\n=== Load Test Results ===")
	fmt.Fprintf(w, "Duration:     %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Requests:     %d\n", total)
	fmt.Fprintf(w, "Errors:       %d\n", errs)
	if secs := elapsed.Seconds(); secs > 0 {
		fmt.Fprintf(w, "Throughput:   %.1f req/s\n", float64(total)/secs)
	}

	if len(codes) > 0 {
		fmt.Fprintln(w, "\n--- Status Codes ---")
		for i, code := range codes {
			fmt.Fprintf(w, "  %d: %d\n", code, counts[i])
		}
	}

	if p.N > 0 {
		fmt.Fprintln(w, "\n--- Latency ---")
		fmt.Fprintf(w, "  avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)\n",
			p.Avg.Round(time.Microsecond),
			p.P50.Round(time.Microsecond),
			p.P95.Round(time.Microsecond),
			p.P99.Round(time.Microsecond),
			p.Max.Round(time.Microsecond),
			p.N,
		)
	}
	fmt.Fprintln(w)
}

func percentiles(durations []time.Duration) Percentiles {
	n := len(durations)
	if n == 0 {
		return Percentiles{}
	}

	sorted := make([]time.Duration, n)
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	return Percentiles{
		N:   n,
		Avg: sum / time.Duration(n),
		P50: sorted[n/2],
		P95: sorted[int(math.Ceil(float64(n)*0.95))-1],
		P99: sorted[int(math.Ceil(float64(n)*0.99))-1],
		Max: sorted[n-1],
	}
}
