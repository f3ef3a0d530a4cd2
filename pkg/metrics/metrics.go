package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	// JobName groups a run's metrics on the Pushgateway.
	JobName = "playlake_etl"

	LabelVersion = "version"
	LabelCommit  = "commit"
	LabelDate    = "date"
	LabelStage   = "stage"
	LabelResult  = "result"
	LabelTable   = "table"
	LabelJoin    = "join"
	LabelReason  = "reason"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "playlake_build_info",
			Help: "Build information of the playlake ETL",
		},
		[]string{LabelVersion, LabelCommit, LabelDate},
	)

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playlake_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms .. ~7m
	}, []string{LabelStage, LabelResult})

	RowsWritten = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "playlake_rows_written",
		Help: "Rows written per output table in the last run",
	}, []string{LabelTable})

	JoinMatchRatio = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "playlake_join_match_ratio",
		Help: "Fraction of play events matched by each fact join in the last run",
	}, []string{LabelJoin})

	QuarantinedRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "playlake_quarantined_rows",
		Help: "Play events routed to quarantine per reason in the last run",
	}, []string{LabelReason})
)

// Push sends every registered metric to the Pushgateway at url, replacing the job's
// previous group.
func Push(ctx context.Context, url string) error {
	return push.New(url, JobName).Gatherer(prometheus.DefaultGatherer).PushContext(ctx)
}

// PushIfConfigured is Push for an optional url.
func PushIfConfigured(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	if err := Push(ctx, url); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}

// PushAfterRun is PushIfConfigured detached from ctx's cancellation and bounded by
// timeout, so an interrupted run still reports its metrics.
func PushAfterRun(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return PushIfConfigured(ctx, url)
}
