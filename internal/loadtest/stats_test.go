package loadtest

import (
	"bytes"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%10 == 0 {
				c.AddError()
				return
			}
			status := http.StatusOK
			if i%2 == 1 {
				status = http.StatusNotFound
			}
			c.AddResponse(status, time.Duration(i)*time.Millisecond)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 45, c.Total())
	assert.Equal(t, 5, c.ErrorCount())
	assert.Equal(t, 25, c.Count(http.StatusNotFound))
	assert.Equal(t, 20, c.Count(http.StatusOK))
}

func TestCollector_Latencies(t *testing.T) {
	c := NewCollector()
	for i := 1; i <= 100; i++ {
		c.AddResponse(http.StatusOK, time.Duration(i)*time.Millisecond)
	}

	p := c.Latencies()
	assert.Equal(t, 100, p.N)
	assert.Equal(t, 51*time.Millisecond, p.P50)
	assert.Equal(t, 95*time.Millisecond, p.P95)
	assert.Equal(t, 99*time.Millisecond, p.P99)
	assert.Equal(t, 100*time.Millisecond, p.Max)
	assert.Equal(t, 50500*time.Microsecond, p.Avg)
}

func TestCollector_Empty(t *testing.T) {
	c := NewCollector()
	assert.Equal(t, Percentiles{}, c.Latencies())

	var buf bytes.Buffer
	c.Report(&buf)
	assert.Contains(t, buf.String(), "Requests:     0")
	assert.NotContains(t, buf.String(), "Latency")
}

func TestCollector_Report(t *testing.T) {
	c := NewCollector()
	c.AddResponse(http.StatusOK, time.Millisecond)
	c.AddResponse(http.StatusTooManyRequests, 2*time.Millisecond)

	var buf bytes.Buffer
	c.Report(&buf)
	out := buf.String()
	assert.Contains(t, out, "200: 1")
	assert.Contains(t, out, "429: 1")
	assert.Contains(t, out, "(n=2)")
}
