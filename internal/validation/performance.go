package validation

import (
	"context"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"golang.org/x/sync/errgroup"

	"yqhp/arena/pkg/types"
)

// Latency bounds of the performance score. A p95 at or under FastP95 scores
// 100, at or over SlowP95 scores 0.
const (
	FastP95 = 100 * time.Millisecond
	SlowP95 = 2 * time.Second
)

// PerformanceCheck load tests the worker's root path.
type PerformanceCheck struct {
	requests    int
	concurrency int
	timeout     time.Duration
	path        string
}

// NewPerformanceCheck creates a load test of requests GETs with the given
// concurrency.
func NewPerformanceCheck(requests, concurrency int, timeout time.Duration) *PerformanceCheck {
	return &PerformanceCheck{
		requests:    max(requests, 1),
		concurrency: max(concurrency, 1),
		timeout:     timeout,
		path:        "/",
	}
}

// Category implements Check.
func (*PerformanceCheck) Category() string { return types.CategoryPerformance }

// Run implements Check.
func (p *PerformanceCheck) Run(ctx context.Context, t Target) Result {
	var r Result
	client := newClient(p.timeout, p.concurrency)
	url := "http://" + t.Addr + p.path

	// 1µs to 60s at 3 significant figures
	hist := hdrhistogram.New(1, int64(time.Minute/time.Microsecond), 3)
	var (
		mu     sync.Mutex
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := 0; i < p.requests; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			resp, err := get(gctx, client, url, p.timeout)
			mu.Lock()
			defer mu.Unlock()
			if err != nil || !resp.ok() {
				failed++
				return nil
			}
			_ = hist.RecordValue(resp.latency.Microseconds())
			return nil
		})
	}
	_ = g.Wait()

	sent := failed + int(hist.TotalCount())
	if sent == 0 || hist.TotalCount() == 0 {
		r.addf("no successful responses from %s", url)
		return r
	}

	p95 := time.Duration(hist.ValueAtQuantile(95)) * time.Microsecond
	mean := time.Duration(hist.Mean()) * time.Microsecond
	errRate := float64(failed) / float64(sent)

	r.Score = types.ClampScore(LatencyScore(p95) * (1 - errRate))
	r.addf("%d requests, %.1f%% errors", sent, errRate*100)
	r.addf("p95 %s, mean %s, max %s", p95, mean, time.Duration(hist.Max())*time.Microsecond)
	if errRate > 0.05 {
		r.addf("error rate above 5%%")
	}
	return r
}

// LatencyScore maps a p95 latency linearly onto 100..0 between FastP95 and
// SlowP95.
func LatencyScore(p95 time.Duration) float64 {
	switch {
	case p95 <= FastP95:
		return 100
	case p95 >= SlowP95:
		return 0
	}
	return 100 * float64(SlowP95-p95) / float64(SlowP95-FastP95)
}
