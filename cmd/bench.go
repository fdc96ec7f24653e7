package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// benchBox is the sampling area, roughly greater Nairobi.
var benchBox = struct{ LatMin, LatMax, LonMin, LonMax float64 }{-1.45, -1.15, 36.65, 36.95}

type benchResult struct {
	Requests   int
	Succeeded  int64
	Authorized int64
	Surge      int64
	Elapsed    time.Duration
	Latencies  []time.Duration
}

func (r benchResult) mean() time.Duration {
	if len(r.Latencies) == 0 {
		return 0
	}
	var sum time.Duration
	for _, l := range r.Latencies {
		sum += l
	}
	return sum / time.Duration(len(r.Latencies))
}

// runBench posts n random requests to url with at most concurrency in
// flight. A nil limiter sends as fast as possible.
func runBench(ctx context.Context, client *http.Client, url string, n, concurrency int, limiter *rate.Limiter, rng *rand.Rand) (benchResult, error) {
	res := benchResult{Requests: n}

	type point struct{ lat, lon float64 }
	points := make([]point, n)
	for i := range points {
		points[i] = point{
			lat: benchBox.LatMin + rng.Float64()*(benchBox.LatMax-benchBox.LatMin),
			lon: benchBox.LonMin + rng.Float64()*(benchBox.LonMax-benchBox.LonMin),
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	start := time.Now()
	for i, p := range points {
		if limiter != nil {
			if err := limiter.Wait(gctx); err != nil {
				break
			}
		}
		g.Go(func() error {
			body, _ := json.Marshal(map[string]any{"driver_id": i, "lat": p.lat, "lon": p.lon})
			req, err := http.NewRequestWithContext(gctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return eris.Wrap(err, "bench: build request")
			}
			req.Header.Set("Content-Type", "application/json")

			t0 := time.Now()
			resp, err := client.Do(req)
			if err != nil {
				// Transport errors are counted as failures, not fatal.
				return nil
			}
			defer resp.Body.Close() //nolint:errcheck
			lat := time.Since(t0)

			if resp.StatusCode != http.StatusOK {
				return nil
			}
			var out struct {
				Authorized  bool `json:"authorized"`
				SurgeActive bool `json:"surge_active"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return nil
			}
			atomic.AddInt64(&res.Succeeded, 1)
			if out.Authorized {
				atomic.AddInt64(&res.Authorized, 1)
			}
			if out.SurgeActive {
				atomic.AddInt64(&res.Surge, 1)
			}
			mu.Lock()
			res.Latencies = append(res.Latencies, lat)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	res.Elapsed = time.Since(start)
	return res, err
}

var (
	benchURL         string
	benchRequests    int
	benchConcurrency int
	benchRPS         float64
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Load test a running server with random points around Nairobi",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var limiter *rate.Limiter
		if benchRPS > 0 {
			limiter = rate.NewLimiter(rate.Limit(benchRPS), 1)
		}
		client := &http.Client{Timeout: 10 * time.Second}
		rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))

		res, err := runBench(cmd.Context(), client, benchURL, benchRequests, benchConcurrency, limiter, rng)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "------------------------------")
		fmt.Fprintf(out, "Total time:          %s\n", res.Elapsed.Round(time.Millisecond))
		fmt.Fprintf(out, "Mean latency:        %s\n", res.mean().Round(time.Microsecond))
		fmt.Fprintf(out, "Successful requests: %d/%d\n", res.Succeeded, res.Requests)
		fmt.Fprintf(out, "Points in a zone:    %d\n", res.Authorized)
		fmt.Fprintf(out, "Points in a surge:   %d\n", res.Surge)
		fmt.Fprintln(out, "------------------------------")
		return nil
	},
}

func init() {
	f := benchCmd.Flags()
	f.StringVar(&benchURL, "url", "http://127.0.0.1:8080/can_accept_order", "decision endpoint")
	f.IntVar(&benchRequests, "requests", 2000, "number of requests")
	f.IntVar(&benchConcurrency, "concurrency", 8, "requests in flight")
	f.Float64Var(&benchRPS, "rps", 0, "request rate limit (0 = unlimited)")
	rootCmd.AddCommand(benchCmd)
}
