package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func loadtestCommand() *cli.Command {
	return &cli.Command{
		Name:  "loadtest",
		Usage: "Drive a running serve instance with a mix of search queries",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "Base URL of the search service"},
			&cli.IntFlag{Name: "concurrency", Value: 10, Usage: "Number of concurrent workers"},
			&cli.DurationFlag{Name: "duration", Value: 30 * time.Second, Usage: "Test duration"},
			&cli.StringSliceFlag{Name: "text", Usage: "Free-text queries to use instead of the built-in mix"},
		},
		Action: runLoadtest,
	}
}

var defaultQueries = []url.Values{
	{"text": {"readme"}},
	{"text": {"func AND return"}},
	{"text": {`"package main"`}},
	{"text": {"test*"}},
	{"name": {"*.go"}},
	{"name": {"README*"}},
	{"path": {"/cmd"}},
	{"path": {"/internal"}, "text": {"error"}},
	{"name": {"*.md"}, "text": {"install OR setup"}},
}

type loadStats struct {
	total    atomic.Int64
	failed   atomic.Int64
	tooLarge atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int
}

func (s *loadStats) record(d time.Duration, code int, err error) {
	s.total.Add(1)
	if err != nil {
		s.failed.Add(1)
		return
	}
	switch {
	case code == http.StatusRequestEntityTooLarge:
		s.tooLarge.Add(1)
	case code >= 300:
		s.failed.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[code]++
	s.mu.Unlock()
}

func runLoadtest(c *cli.Context) error {
	base := c.String("url")
	queries := defaultQueries
	if texts := c.StringSlice("text"); len(texts) > 0 {
		queries = make([]url.Values, len(texts))
		for i, t := range texts {
			queries[i] = url.Values{"text": {t}}
		}
	}
	concurrency := max(c.Int("concurrency"), 1)
	duration := c.Duration("duration")

	fmt.Printf("target %s, %d workers for %s, %d queries\n", base, concurrency, duration, len(queries))

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	stats := &loadStats{codes: make(map[int]int)}
	ctx, cancel := context.WithTimeout(c.Context, duration)
	defer cancel()

	var g errgroup.Group
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				target := base + "/api/v1/search?" + queries[i%len(queries)].Encode()
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					return err
				}
				start := time.Now()
				resp, err := client.Do(req)
				if ctx.Err() != nil {
					return nil
				}
				if err != nil {
					stats.record(time.Since(start), 0, err)
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.record(time.Since(start), resp.StatusCode, nil)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return report(stats, duration)
}

func report(stats *loadStats, duration time.Duration) error {
	total := stats.total.Load()
	if total == 0 {
		return fmt.Errorf("no requests completed; is the service running?")
	}
	fmt.Printf("requests %d, failed %d, too large %d, %.1f req/s\n",
		total, stats.failed.Load(), stats.tooLarge.Load(), float64(total)/duration.Seconds())

	stats.mu.Lock()
	defer stats.mu.Unlock()
	lat := stats.latencies
	if len(lat) > 0 {
		slices.Sort(lat)
		fmt.Printf("latency min %s p50 %s p90 %s p99 %s max %s\n",
			lat[0], percentile(lat, 50), percentile(lat, 90), percentile(lat, 99), lat[len(lat)-1])
	}
	codes := make([]int, 0, len(stats.codes))
	for code := range stats.codes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.codes[code])
	}
	return nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = min(max(idx, 0), len(sorted)-1)
	return sorted[idx]
}
