// Package pipeline runs a declared graph of stages, starting each stage only once every
// stage it depends on has succeeded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/playlake/pkg/metrics"
)

const defaultMaxConcurrency = 4

var (
	ErrDuplicateStage    = errors.New("duplicate stage")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrCycle             = errors.New("dependency cycle")
	ErrStageNotStarted   = errors.New("stage not started")
	ErrStagePanicked     = errors.New("stage panicked")
)

type Stage struct {
	Name      string
	DependsOn []string
	Run       func(ctx context.Context) error
}

type Config struct {
	Logger         *slog.Logger
	Clock          clockwork.Clock
	MaxConcurrency int
	Stages         []Stage
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.MaxConcurrency < 0 {
		return errors.New("max concurrency must be non-negative")
	}
	if len(c.Stages) == 0 {
		return errors.New("at least one stage is required")
	}

	// Optional with default
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = defaultMaxConcurrency
	}
	return nil
}

type Pipeline struct {
	log            *slog.Logger
	clock          clockwork.Clock
	maxConcurrency int

	stages     []Stage
	index      map[string]int
	dependents map[string][]string
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	index := make(map[string]int, len(cfg.Stages))
	for i, s := range cfg.Stages {
		if s.Name == "" {
			return nil, fmt.Errorf("stage %d has no name", i)
		}
		if s.Run == nil {
			return nil, fmt.Errorf("stage %s has no run func", s.Name)
		}
		if _, ok := index[s.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStage, s.Name)
		}
		index[s.Name] = i
	}

	dependents := make(map[string][]string, len(cfg.Stages))
	for _, s := range cfg.Stages {
		for _, dep := range s.DependsOn {
			if _, ok := index[dep]; !ok {
				return nil, fmt.Errorf("%w: stage %s depends on %s", ErrUnknownDependency, s.Name, dep)
			}
			dependents[dep] = append(dependents[dep], s.Name)
		}
	}

	p := &Pipeline{
		log:            cfg.Logger,
		clock:          cfg.Clock,
		maxConcurrency: cfg.MaxConcurrency,
		stages:         cfg.Stages,
		index:          index,
		dependents:     dependents,
	}
	if _, err := p.Order(); err != nil {
		return nil, err
	}
	return p, nil
}

// Order returns the stage names in a dependency-respecting order, ties broken by
// declaration order.
func (p *Pipeline) Order() ([]string, error) {
	pending := p.indegrees()
	ready := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		if pending[s.Name] == 0 {
			ready = append(ready, s.Name)
		}
	}

	order := make([]string, 0, len(p.stages))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)
		for _, dep := range p.dependents[name] {
			pending[dep]--
			if pending[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	if len(order) != len(p.stages) {
		var stuck []string
		for _, s := range p.stages {
			if pending[s.Name] > 0 {
				stuck = append(stuck, s.Name)
			}
		}
		return nil, fmt.Errorf("%w among stages %v", ErrCycle, stuck)
	}
	return order, nil
}

func (p *Pipeline) indegrees() map[string]int {
	pending := make(map[string]int, len(p.stages))
	for _, s := range p.stages {
		pending[s.Name] = len(s.DependsOn)
	}
	return pending
}

type StageResult struct {
	Name       string
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Duration is zero for stages that never started.
func (r StageResult) Duration() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time

	// Stages is in declaration order. Stages skipped after a failure carry
	// ErrStageNotStarted.
	Stages []StageResult
}

func (r *Report) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// Run executes the graph. The first stage error cancels the context passed to running
// stages, no further stages are started, and that error is returned once every running
// stage has returned.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	report := &Report{StartedAt: p.clock.Now()}
	results := make(map[string]StageResult, len(p.stages))
	done := make(chan StageResult, len(p.stages))

	pool := pond.NewPool(p.maxConcurrency)
	defer pool.StopAndWait()

	running := 0
	submit := func(stage Stage) {
		running++
		pool.Submit(func() {
			done <- p.runStage(ctx, stage)
		})
	}

	pending := p.indegrees()
	for _, s := range p.stages {
		if pending[s.Name] == 0 {
			submit(s)
		}
	}

	var firstErr error
	for running > 0 {
		res := <-done
		running--
		results[res.Name] = res

		if res.Err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("stage %s failed: %w", res.Name, res.Err)
				cancel()
			}
			continue
		}
		if firstErr != nil {
			continue
		}
		for _, name := range p.dependents[res.Name] {
			pending[name]--
			if pending[name] == 0 {
				submit(p.stages[p.index[name]])
			}
		}
	}

	report.FinishedAt = p.clock.Now()
	for _, s := range p.stages {
		res, ok := results[s.Name]
		if !ok {
			res = StageResult{Name: s.Name, Err: ErrStageNotStarted}
		}
		report.Stages = append(report.Stages, res)
	}

	if firstErr != nil {
		p.log.Error("pipeline: run failed", "error", firstErr, "duration", report.FinishedAt.Sub(report.StartedAt).String())
		return report, firstErr
	}
	p.log.Info("pipeline: run completed", "stages", len(p.stages), "duration", report.FinishedAt.Sub(report.StartedAt).String())
	return report, nil
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage) StageResult {
	res := StageResult{Name: stage.Name, StartedAt: p.clock.Now()}
	if err := ctx.Err(); err != nil {
		res.FinishedAt = res.StartedAt
		res.Err = err
		return res
	}

	p.log.Debug("pipeline: stage started", "stage", stage.Name)
	res.Err = call(ctx, stage)
	res.FinishedAt = p.clock.Now()

	result := metrics.ResultSuccess
	if res.Err != nil {
		result = metrics.ResultError
		p.log.Warn("pipeline: stage failed", "stage", stage.Name, "error", res.Err, "duration", res.Duration().String())
	} else {
		p.log.Info("pipeline: stage completed", "stage", stage.Name, "duration", res.Duration().String())
	}
	metrics.StageDuration.WithLabelValues(stage.Name, result).Observe(res.Duration().Seconds())
	return res
}

// call runs the stage and converts a panic into ErrStagePanicked so the stage still
// reports a result.
func call(ctx context.Context, stage Stage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStagePanicked, r)
		}
	}()
	return stage.Run(ctx)
}
