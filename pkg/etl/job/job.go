// Package job wires the source reader, transformers, fact builder, reconciliation and
// sink into the stage graph of one full run.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/playlake/pkg/duck"
	"github.com/malbeclabs/playlake/pkg/etl"
	"github.com/malbeclabs/playlake/pkg/etl/catalog"
	"github.com/malbeclabs/playlake/pkg/etl/events"
	"github.com/malbeclabs/playlake/pkg/etl/facts"
	"github.com/malbeclabs/playlake/pkg/etl/pipeline"
	"github.com/malbeclabs/playlake/pkg/etl/sink"
	"github.com/malbeclabs/playlake/pkg/etl/source"
	"github.com/malbeclabs/playlake/pkg/schema"
	"github.com/malbeclabs/playlake/pkg/storage"
)

// Stage names.
const (
	StageReadSongData    = "read_song_data"
	StageReadLogData     = "read_log_data"
	StageSongs           = "songs"
	StageArtists         = "artists"
	StageWriteSongs      = "write_songs"
	StageWriteArtists    = "write_artists"
	StageFilterPlays     = "filter_plays"
	StageUsers           = "users"
	StageTime            = "time"
	StageWriteUsers      = "write_users"
	StageWriteTime       = "write_time"
	StageSongplays       = "songplays"
	StageReconcile       = "reconcile"
	StageWriteSongplays  = "write_songplays"
	StageWriteQuarantine = "write_quarantine"
)

type Config struct {
	Logger    *slog.Logger
	Engine    duck.DB
	Store     storage.Store
	InputURI  string
	OutputURI string

	Clock          clockwork.Clock
	MaxConcurrency int
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Engine == nil {
		return errors.New("engine is required")
	}
	if c.Store == nil {
		return errors.New("store is required")
	}
	if err := duck.ValidateStorageURI(c.InputURI); err != nil {
		return fmt.Errorf("invalid input URI: %w", err)
	}
	if err := duck.ValidateStorageURI(c.OutputURI); err != nil {
		return fmt.Errorf("invalid output URI: %w", err)
	}
	if c.MaxConcurrency < 0 {
		return errors.New("max concurrency must be non-negative")
	}

	// Optional with default
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Summary is the outcome of a completed run.
type Summary struct {
	Report         *pipeline.Report
	Writes         map[string]sink.Result
	Reconciliation facts.Report
}

// Job holds the row-sets that flow between stages of one run.
type Job struct {
	log    *slog.Logger
	cfg    Config
	reader *source.Reader
	writer *sink.Writer

	mu         sync.Mutex
	tables     map[string]etl.Table
	writes     map[string]sink.Result
	reconciled facts.Report
}

func New(cfg Config) (*Job, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	writer, err := sink.NewWriter(sink.Config{Logger: cfg.Logger, Store: cfg.Store})
	if err != nil {
		return nil, err
	}
	return &Job{
		log:    cfg.Logger,
		cfg:    cfg,
		reader: source.NewReader(cfg.Logger),
		writer: writer,
		tables: make(map[string]etl.Table),
		writes: make(map[string]sink.Result),
	}, nil
}

// Run executes every stage and returns once all outputs are written or a stage failed.
func (j *Job) Run(ctx context.Context) (*Summary, error) {
	p, err := pipeline.New(pipeline.Config{
		Logger:         j.log,
		Clock:          j.cfg.Clock,
		MaxConcurrency: j.cfg.MaxConcurrency,
		Stages:         j.Stages(),
	})
	if err != nil {
		return nil, err
	}

	report, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	writes := make(map[string]sink.Result, len(j.writes))
	for k, v := range j.writes {
		writes[k] = v
	}
	return &Summary{Report: report, Writes: writes, Reconciliation: j.reconciled}, nil
}

// Stages declares the run's stage graph. songplays reads songs and artists back from
// the output location, so it depends on their write stages rather than their derive
// stages.
func (j *Job) Stages() []pipeline.Stage {
	return []pipeline.Stage{
		{Name: StageReadSongData, Run: j.read(source.SongData(j.cfg.InputURI))},
		{Name: StageReadLogData, Run: j.read(source.LogData(j.cfg.InputURI))},

		{Name: StageSongs, DependsOn: []string{StageReadSongData}, Run: j.derive(schema.SongData, catalog.Songs)},
		{Name: StageArtists, DependsOn: []string{StageReadSongData}, Run: j.derive(schema.SongData, catalog.Artists)},
		{Name: StageWriteSongs, DependsOn: []string{StageSongs}, Run: j.write(schema.Songs)},
		{Name: StageWriteArtists, DependsOn: []string{StageArtists}, Run: j.write(schema.Artists)},

		{Name: StageFilterPlays, DependsOn: []string{StageReadLogData}, Run: j.derive(schema.LogData, events.FilterPlays)},
		{Name: StageUsers, DependsOn: []string{StageFilterPlays}, Run: j.derive(events.Plays, events.Users)},
		{Name: StageTime, DependsOn: []string{StageFilterPlays}, Run: j.derive(events.Plays, events.Time)},
		{Name: StageWriteUsers, DependsOn: []string{StageUsers}, Run: j.write(schema.Users)},
		{Name: StageWriteTime, DependsOn: []string{StageTime}, Run: j.write(schema.Time)},

		{Name: StageSongplays, DependsOn: []string{StageWriteSongs, StageWriteArtists, StageTime, StageFilterPlays}, Run: j.songplays},
		{Name: StageReconcile, DependsOn: []string{StageSongplays}, Run: j.reconcile},
		{Name: StageWriteSongplays, DependsOn: []string{StageSongplays}, Run: j.write(schema.Songplays)},
		{Name: StageWriteQuarantine, DependsOn: []string{StageReconcile}, Run: j.write(schema.SongplaysQuarantine)},
	}
}

func (j *Job) withConn(fn func(ctx context.Context, conn duck.Connection) error) func(context.Context) error {
	return func(ctx context.Context) error {
		conn, err := j.cfg.Engine.Conn(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()
		return fn(ctx, conn)
	}
}

func (j *Job) put(key string, t etl.Table) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.tables[key] = t
}

func (j *Job) get(key string) (etl.Table, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	t, ok := j.tables[key]
	if !ok {
		return etl.Table{}, fmt.Errorf("table %s has not been produced", key)
	}
	return t, nil
}

func (j *Job) dest(table string) (string, error) {
	return duck.Join(j.cfg.OutputURI, table)
}

// read loads a dataset and stores it under its raw table name.
func (j *Job) read(ds source.Dataset) func(context.Context) error {
	return j.withConn(func(ctx context.Context, conn duck.Connection) error {
		t, err := j.reader.Read(ctx, conn, ds)
		if err != nil {
			return err
		}
		j.put(ds.Table.Name, t)
		return nil
	})
}

type transform func(ctx context.Context, conn duck.Connection, in etl.Table) (etl.Table, error)

// derive applies fn to the table stored under input and stores the output under its
// own name.
func (j *Job) derive(input string, fn transform) func(context.Context) error {
	return j.withConn(func(ctx context.Context, conn duck.Connection) error {
		in, err := j.get(input)
		if err != nil {
			return err
		}
		out, err := fn(ctx, conn, in)
		if err != nil {
			return err
		}
		j.put(out.Name, out)
		return nil
	})
}

func (j *Job) write(name string) func(context.Context) error {
	return j.withConn(func(ctx context.Context, conn duck.Connection) error {
		info, ok := schema.Star.Table(name)
		if !ok {
			return fmt.Errorf("unknown output table %s", name)
		}
		t, err := j.get(name)
		if err != nil {
			return err
		}
		dest, err := j.dest(name)
		if err != nil {
			return err
		}
		res, err := j.writer.Write(ctx, conn, t, dest, info)
		if err != nil {
			return err
		}
		j.mu.Lock()
		j.writes[name] = res
		j.mu.Unlock()
		return nil
	})
}

func (j *Job) songplays(ctx context.Context) error {
	return j.withConn(func(ctx context.Context, conn duck.Connection) error {
		plays, err := j.get(events.Plays)
		if err != nil {
			return err
		}
		tt, err := j.get(schema.Time)
		if err != nil {
			return err
		}
		songs, err := j.relation(schema.Songs)
		if err != nil {
			return err
		}
		artists, err := j.relation(schema.Artists)
		if err != nil {
			return err
		}

		out, err := facts.Build(ctx, conn, facts.Inputs{Plays: plays, Time: tt, Songs: songs, Artists: artists})
		if err != nil {
			return err
		}
		j.put(facts.Joined, out.Joined)
		j.put(out.Facts.Name, out.Facts)
		return nil
	})(ctx)
}

// relation reads a written dimension back from the output location.
func (j *Job) relation(name string) (string, error) {
	info, _ := schema.Star.Table(name)
	dest, err := j.dest(name)
	if err != nil {
		return "", err
	}
	return sink.Relation(dest, info)
}

func (j *Job) reconcile(ctx context.Context) error {
	return j.withConn(func(ctx context.Context, conn duck.Connection) error {
		joined, err := j.get(facts.Joined)
		if err != nil {
			return err
		}
		report, quarantine, err := facts.Reconcile(ctx, conn, joined)
		if err != nil {
			return err
		}
		report.Export()
		j.put(quarantine.Name, quarantine)

		j.mu.Lock()
		j.reconciled = report
		j.mu.Unlock()

		j.log.Info("reconcile: join outcomes",
			"play_events", report.PlayEvents,
			"fact_rows", report.FactRows,
			"song_match_rate", report.SongMatchRate(),
			"artist_match_rate", report.ArtistMatchRate(),
			"time_match_rate", report.TimeMatchRate())
		return nil
	})(ctx)
}
