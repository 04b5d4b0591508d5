// Command latency_check measures response times of a running pollenmap
// server and, optionally, of the upstream forecast API.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"pollenmap/pkg/forecast"
)

var defaultEndpoints = []string{
	"/health",
	"/api/version",
	"/api/stats",
	"/api/forecast/state",
	"/api/forecast/areas",
	"/api/playback/status",
	"/api/log/latest",
}

// sample is the timing of one request.
type sample struct {
	ttfb   time.Duration
	total  time.Duration
	status int
	err    error
}

// report aggregates the samples of one endpoint.
type report struct {
	url      string
	requests int
	errors   int
	elapsed  time.Duration
	statuses map[int]int
	total    []time.Duration // sorted
	ttfb     []time.Duration // sorted
}

type benchOptions struct {
	baseURL     string
	upstream    string
	requests    int
	concurrency int
	timeout     time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts benchOptions

	rootCmd := &cobra.Command{
		Use:   "latency_check [endpoint...]",
		Short: "Benchmark pollenmap HTTP endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoints := args
			if len(endpoints) == 0 {
				endpoints = defaultEndpoints
			}
			return runBench(cmd.Context(), opts, endpoints, cmd.OutOrStdout())
		},
	}

	rootCmd.Flags().StringVarP(&opts.baseURL, "url", "u", "http://localhost:1920", "Base URL of the pollenmap server")
	rootCmd.Flags().StringVar(&opts.upstream, "upstream", "", "Also benchmark the forecast manifest at this API base URL")
	rootCmd.Flags().IntVarP(&opts.requests, "requests", "n", 20, "Requests per endpoint")
	rootCmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 1, "Concurrent requests (1 = sequential)")
	rootCmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "Per-request timeout")

	return rootCmd
}

func runBench(ctx context.Context, opts benchOptions, endpoints []string, out io.Writer) error {
	if opts.requests < 1 || opts.concurrency < 1 {
		return fmt.Errorf("requests and concurrency must be positive")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client := &http.Client{Timeout: opts.timeout}
	base := strings.TrimRight(opts.baseURL, "/")

	urls := make([]string, 0, len(endpoints)+1)
	for _, ep := range endpoints {
		urls = append(urls, base+ep)
	}
	// The manifest is the request every reload pays for upstream.
	if opts.upstream != "" {
		urls = append(urls, strings.TrimRight(opts.upstream, "/")+"/"+forecast.ManifestPath)
	}

	fmt.Fprintf(out, "Benchmarking %s with N=%d, C=%d\n\n", base, opts.requests, opts.concurrency)
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return err
		}
		r := bench(ctx, client, u, opts.requests, opts.concurrency)
		r.print(out)
	}
	return nil
}

func bench(ctx context.Context, client *http.Client, url string, n, concurrency int) *report {
	samples := make([]sample, n)
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	start := time.Now()
	for i := range samples {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			samples[i] = measure(ctx, client, url)
		}(i)
	}
	wg.Wait()

	return summarize(url, samples, time.Since(start))
}

func measure(ctx context.Context, client *http.Client, url string) sample {
	var s sample
	var wrote time.Time

	trace := &httptrace.ClientTrace{
		WroteRequest:         func(httptrace.WroteRequestInfo) { wrote = time.Now() },
		GotFirstResponseByte: func() { s.ttfb = time.Since(wrote) },
	}
	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodGet, url, http.NoBody)
	if err != nil {
		s.err = err
		return s
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		s.err = err
		return s
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		s.err = err
		return s
	}
	s.total = time.Since(start)
	s.status = resp.StatusCode
	return s
}

func summarize(url string, samples []sample, elapsed time.Duration) *report {
	r := &report{
		url:      url,
		requests: len(samples),
		elapsed:  elapsed,
		statuses: make(map[int]int),
	}
	for _, s := range samples {
		if s.err != nil {
			r.errors++
			continue
		}
		r.statuses[s.status]++
		r.total = append(r.total, s.total)
		r.ttfb = append(r.ttfb, s.ttfb)
	}
	slices.Sort(r.total)
	slices.Sort(r.ttfb)
	return r
}

// percentile uses nearest rank on a sorted slice.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p*len(sorted)+99)/100 - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}

// statusLine renders "200x18 202x2".
func (r *report) statusLine() string {
	codes := make([]int, 0, len(r.statuses))
	for c := range r.statuses {
		codes = append(codes, c)
	}
	slices.Sort(codes)

	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		parts = append(parts, fmt.Sprintf("%dx%d", c, r.statuses[c]))
	}
	return strings.Join(parts, " ")
}

func (r *report) print(w io.Writer) {
	fmt.Fprintf(w, "Endpoint: %s\n", r.url)
	if s := r.statusLine(); s != "" {
		fmt.Fprintf(w, "  Status: %s\n", s)
	}
	if r.errors > 0 {
		fmt.Fprintf(w, "  Errors: %d/%d\n", r.errors, r.requests)
	}
	if len(r.total) == 0 {
		fmt.Fprintln(w, "  No successful requests.")
		fmt.Fprintln(w)
		return
	}

	rps := 0.0
	if r.elapsed > 0 {
		rps = float64(r.requests) / r.elapsed.Seconds()
	}
	fmt.Fprintf(w, "  Requests: %d | Time: %v | RPS: %.2f\n", r.requests, r.elapsed.Round(time.Millisecond), rps)
	fmt.Fprintf(w, "  Total : p50 %v | p95 %v | max %v\n", percentile(r.total, 50), percentile(r.total, 95), r.total[len(r.total)-1])
	fmt.Fprintf(w, "  TTFB  : p50 %v | p95 %v | max %v\n", percentile(r.ttfb, 50), percentile(r.ttfb, 95), r.ttfb[len(r.ttfb)-1])
	fmt.Fprintln(w)
}
