package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_PushIfConfigured(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		paths  []string
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		bodies = append(bodies, string(body))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	RowsWritten.WithLabelValues("songs").Set(3)

	require.NoError(t, PushIfConfigured(context.Background(), ""))
	require.Empty(t, paths)

	require.NoError(t, PushIfConfigured(context.Background(), srv.URL))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 1)
	require.True(t, strings.HasSuffix(paths[0], "/job/"+JobName), paths[0])
	require.NotEmpty(t, bodies[0])
}

func TestMetrics_PushAfterRun_CanceledContext(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, PushIfConfigured(ctx, srv.URL))
	require.NoError(t, PushAfterRun(ctx, srv.URL, 5*time.Second))
	require.NoError(t, PushAfterRun(ctx, "", 5*time.Second))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, calls)
}

func TestMetrics_PushIfConfigured_Error(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	require.ErrorContains(t, PushIfConfigured(context.Background(), srv.URL), "failed to push metrics")
}

func TestMetrics_Collectors(t *testing.T) {
	t.Parallel()

	JoinMatchRatio.WithLabelValues("collector_test").Set(0.5)
	require.InDelta(t, 0.5, testutil.ToFloat64(JoinMatchRatio.WithLabelValues("collector_test")), 1e-9)

	QuarantinedRows.WithLabelValues("collector_test").Set(7)
	require.InDelta(t, 7.0, testutil.ToFloat64(QuarantinedRows.WithLabelValues("collector_test")), 1e-9)
}
