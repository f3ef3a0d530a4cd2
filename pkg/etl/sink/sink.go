// Package sink persists row-sets as Parquet under hive-style col=value/ directories and
// reads them back.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/malbeclabs/playlake/pkg/duck"
	"github.com/malbeclabs/playlake/pkg/etl"
	"github.com/malbeclabs/playlake/pkg/metrics"
	"github.com/malbeclabs/playlake/pkg/schema"
	"github.com/malbeclabs/playlake/pkg/storage"
)

// unpartitionedFile is the single file an unpartitioned table is written to.
const unpartitionedFile = "data_0.parquet"

type Config struct {
	Logger *slog.Logger
	Store  storage.Store
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Store == nil {
		return errors.New("store is required")
	}
	return nil
}

type Writer struct {
	log   *slog.Logger
	store storage.Store
}

func NewWriter(cfg Config) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Writer{log: cfg.Logger, store: cfg.Store}, nil
}

// Result describes one completed write.
type Result struct {
	Table      string
	Dest       string
	Rows       int64
	Partitions int64
}

// Write replaces whatever is at dest with the rows of table, split into directories by
// info.PartitionBy. Columns are written in info's order. A failure part way leaves dest
// in an unspecified state.
func (w *Writer) Write(ctx context.Context, conn duck.Connection, table etl.Table, dest string, info schema.TableInfo) (Result, error) {
	if err := duck.ValidateStorageURI(dest); err != nil {
		return Result{}, fmt.Errorf("invalid destination: %w", err)
	}
	start := time.Now()

	if err := w.store.Reset(ctx, dest); err != nil {
		return Result{}, fmt.Errorf("failed to reset %s: %w", duck.RedactedStorageURI(dest), err)
	}

	selectSQL := fmt.Sprintf("SELECT %s FROM %s", columnList(info.ColumnNames()), table.Ident())
	var stmt string
	if len(info.PartitionBy) > 0 {
		target, err := duck.Join(dest)
		if err != nil {
			return Result{}, err
		}
		stmt = fmt.Sprintf("COPY (%s) TO %s (FORMAT PARQUET, PARTITION_BY (%s), OVERWRITE_OR_IGNORE true)",
			selectSQL, duck.QuoteLiteral(target), columnList(info.PartitionBy))
	} else {
		target, err := duck.Join(dest, unpartitionedFile)
		if err != nil {
			return Result{}, err
		}
		stmt = fmt.Sprintf("COPY (%s) TO %s (FORMAT PARQUET)", selectSQL, duck.QuoteLiteral(target))
	}
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return Result{}, fmt.Errorf("failed to write %s to %s: %w", table.Name, duck.RedactedStorageURI(dest), err)
	}

	rows, err := table.Count(ctx, conn)
	if err != nil {
		return Result{}, err
	}
	partitions := int64(1)
	if len(info.PartitionBy) > 0 {
		partitions, err = duck.CountRows(ctx, conn, fmt.Sprintf("(SELECT DISTINCT %s FROM %s)", columnList(info.PartitionBy), table.Ident()))
		if err != nil {
			return Result{}, err
		}
	}

	metrics.RowsWritten.WithLabelValues(info.Name).Set(float64(rows))
	w.log.Info("sink: wrote table", "table", info.Name, "dest", duck.RedactedStorageURI(dest), "rows", rows, "partitions", partitions, "duration", time.Since(start).String())

	return Result{Table: info.Name, Dest: dest, Rows: rows, Partitions: partitions}, nil
}

// Relation returns a parenthesized query reading back a table written to dest, with
// partition columns restored to their declared types and columns in info's order.
func Relation(dest string, info schema.TableInfo) (string, error) {
	if err := duck.ValidateStorageURI(dest); err != nil {
		return "", fmt.Errorf("invalid destination: %w", err)
	}
	path, err := filePattern(dest, info)
	if err != nil {
		return "", err
	}
	if len(info.PartitionBy) == 0 {
		return fmt.Sprintf("(SELECT %s FROM read_parquet(%s, hive_partitioning = false))",
			columnList(info.ColumnNames()), duck.QuoteLiteral(path)), nil
	}

	types := make([]string, 0, len(info.PartitionBy))
	for _, name := range info.PartitionBy {
		typ := "VARCHAR"
		for _, c := range info.Columns {
			if c.Name == name {
				typ = c.Type
			}
		}
		types = append(types, fmt.Sprintf("%s: %s", duck.QuoteLiteral(name), typ))
	}
	return fmt.Sprintf("(SELECT %s FROM read_parquet(%s, hive_partitioning = true, hive_types = {%s}))",
		columnList(info.ColumnNames()), duck.QuoteLiteral(path), strings.Join(types, ", ")), nil
}

// Exists reports whether dest holds any Parquet files for info. A partitioned table
// with no rows is written as no files at all.
func Exists(ctx context.Context, conn duck.Connection, dest string, info schema.TableInfo) (bool, error) {
	if err := duck.ValidateStorageURI(dest); err != nil {
		return false, fmt.Errorf("invalid destination: %w", err)
	}
	path, err := filePattern(dest, info)
	if err != nil {
		return false, err
	}
	n, err := duck.CountRows(ctx, conn, fmt.Sprintf("glob(%s)", duck.QuoteLiteral(path)))
	if err != nil {
		return false, fmt.Errorf("failed to list %s: %w", duck.RedactedStorageURI(dest), err)
	}
	return n > 0, nil
}

func filePattern(dest string, info schema.TableInfo) (string, error) {
	if len(info.PartitionBy) == 0 {
		return duck.Join(dest, "*.parquet")
	}
	return duck.Join(dest, "**", "*.parquet")
}

func columnList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = duck.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
