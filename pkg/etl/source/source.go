package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/malbeclabs/playlake/pkg/duck"
	"github.com/malbeclabs/playlake/pkg/etl"
	"github.com/malbeclabs/playlake/pkg/schema"
)

const (
	SongDataPattern = "song_data/*/*/*/*.json"
	LogDataPattern  = "log_data/*/*/*.json"
)

// Dataset locates one line-delimited JSON dataset under a storage root.
type Dataset struct {
	Root    string
	Pattern string
	Table   schema.TableInfo
}

func (d Dataset) Validate() error {
	if err := duck.ValidateStorageURI(d.Root); err != nil {
		return err
	}
	if d.Pattern == "" {
		return errors.New("pattern is required")
	}
	if d.Table.Name == "" || len(d.Table.Columns) == 0 {
		return errors.New("table schema is required")
	}
	return nil
}

// SongData is the catalog dataset under root.
func SongData(root string) Dataset {
	table, _ := schema.Raw.Table(schema.SongData)
	return Dataset{Root: root, Pattern: SongDataPattern, Table: table}
}

// LogData is the event dataset under root.
func LogData(root string) Dataset {
	table, _ := schema.Raw.Table(schema.LogData)
	return Dataset{Root: root, Pattern: LogDataPattern, Table: table}
}

type Reader struct {
	log *slog.Logger
}

func NewReader(log *slog.Logger) *Reader {
	return &Reader{log: log}
}

// Read parses every file matching the dataset's pattern into a raw_<table> row-set.
// Missing or malformed files fail the read with the engine's error.
func (r *Reader) Read(ctx context.Context, conn duck.Connection, ds Dataset) (etl.Table, error) {
	if err := ds.Validate(); err != nil {
		return etl.Table{}, fmt.Errorf("invalid dataset: %w", err)
	}
	path, err := duck.Join(ds.Root, ds.Pattern)
	if err != nil {
		return etl.Table{}, err
	}

	start := time.Now()
	query := fmt.Sprintf(
		"SELECT * FROM read_json(%s, format = 'newline_delimited', columns = %s)",
		duck.QuoteLiteral(path), ds.Table.ReadJSONColumns(),
	)
	table, err := etl.Materialize(ctx, conn, "raw_"+ds.Table.Name, query)
	if err != nil {
		return etl.Table{}, fmt.Errorf("failed to read %s from %s: %w", ds.Table.Name, duck.RedactedStorageURI(path), err)
	}

	rows, err := table.Count(ctx, conn)
	if err != nil {
		return etl.Table{}, err
	}
	r.log.Info("source: read dataset", "dataset", ds.Table.Name, "path", duck.RedactedStorageURI(path), "rows", rows, "duration", time.Since(start).String())
	return table, nil
}
