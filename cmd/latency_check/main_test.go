package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	samples := []sample{
		{status: 202, total: 30 * time.Millisecond},
		{status: 200, total: 10 * time.Millisecond},
		{status: 200, total: 20 * time.Millisecond},
		{err: errors.New("refused")},
	}
	r := summarize("http://x/health", samples, time.Second)

	assert.Equal(t, 4, r.requests)
	assert.Equal(t, 1, r.errors)
	assert.Equal(t, "200x2 202x1", r.statusLine())
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}, r.total)

	empty := summarize("http://x/health", nil, 0)
	assert.Equal(t, "", empty.statusLine())
}

func TestPercentile(t *testing.T) {
	var d []time.Duration
	for i := 1; i <= 20; i++ {
		d = append(d, time.Duration(i)*time.Millisecond)
	}
	assert.Equal(t, 10*time.Millisecond, percentile(d, 50))
	assert.Equal(t, 19*time.Millisecond, percentile(d, 95))
	assert.Equal(t, 20*time.Millisecond, percentile(d, 100))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
	assert.Equal(t, time.Millisecond, percentile(d[:1], 95))
}

func TestRunBench(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ajax/get_forecasts" {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := runBench(context.Background(), benchOptions{
		baseURL:     srv.URL + "/",
		upstream:    srv.URL,
		requests:    3,
		concurrency: 2,
		timeout:     time.Second,
	}, []string{"/health"}, &out)
	assert.NoError(t, err)
	assert.Contains(t, out.String(), "Endpoint: "+srv.URL+"/health")
	assert.Contains(t, out.String(), "Status: 200x3")
	assert.Contains(t, out.String(), "Status: 418x3")
}

func TestRunBench_InvalidOptions(t *testing.T) {
	err := runBench(context.Background(), benchOptions{requests: 0, concurrency: 1}, nil, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRootCmd_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"-u", url, "-n", "2", "/health"})
	assert.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Errors: 2/2")
	assert.Contains(t, out.String(), "No successful requests.")
}
