package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/malbeclabs/playlake/internal/testutil"
	"github.com/malbeclabs/playlake/pkg/duck"
	"github.com/malbeclabs/playlake/pkg/etl"
	"github.com/malbeclabs/playlake/pkg/schema"
	"github.com/malbeclabs/playlake/pkg/storage"
	"github.com/stretchr/testify/require"
)

type song struct {
	ID       string
	Title    string
	ArtistID string
	Year     int64
	Duration float64
}

func newWriter(t *testing.T) *Writer {
	t.Helper()
	store, err := storage.New(context.Background(), storage.Config{Logger: testutil.NewLogger()})
	require.NoError(t, err)
	w, err := NewWriter(Config{Logger: testutil.NewLogger(), Store: store})
	require.NoError(t, err)
	return w
}

func seedSongs(t *testing.T, conn duck.Connection) etl.Table {
	t.Helper()
	table, err := etl.Materialize(context.Background(), conn, "songs", `
		SELECT * FROM (VALUES
			('SO1', 'One', 'AR1', 2001::BIGINT, 1.5::DOUBLE),
			('SO2', 'Two', 'AR1', 2001::BIGINT, 2.5::DOUBLE),
			('SO3', 'Three', 'AR2', 1999::BIGINT, 3.5::DOUBLE),
			('SO4', 'Four', 'AR2', 0::BIGINT, 4.5::DOUBLE)
		) AS t(song_id, title, artist_id, year, duration)`)
	require.NoError(t, err)
	return table
}

func readSongs(t *testing.T, conn duck.Connection, relation string) []song {
	t.Helper()
	rows, err := conn.QueryContext(context.Background(), "SELECT song_id, title, artist_id, year, duration FROM "+relation)
	require.NoError(t, err)
	defer rows.Close()

	var out []song
	for rows.Next() {
		var s song
		require.NoError(t, rows.Scan(&s.ID, &s.Title, &s.ArtistID, &s.Year, &s.Duration))
		out = append(out, s)
	}
	require.NoError(t, rows.Err())
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func TestSink_Write_Partitioned(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, conn := testutil.NewEngine(t)
	table := seedSongs(t, conn)
	info, _ := schema.Star.Table(schema.Songs)

	dest := filepath.Join(t.TempDir(), "songs")
	// Output from a previous run is replaced, not merged.
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "year=1900", "artist_id=OLD"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "year=1900", "artist_id=OLD", "data_0.parquet"), []byte("stale"), 0o644))

	res, err := newWriter(t).Write(ctx, conn, table, dest, info)
	require.NoError(t, err)
	require.Equal(t, Result{Table: "songs", Dest: dest, Rows: 4, Partitions: 3}, res)

	_, err = os.Stat(filepath.Join(dest, "year=2001", "artist_id=AR1"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dest, "year=1900"))
	require.ErrorIs(t, err, os.ErrNotExist)

	relation, err := Relation(dest, info)
	require.NoError(t, err)
	got := readSongs(t, conn, relation)
	want := readSongs(t, conn, table.Ident())
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	var yearType string
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT typeof(year) FROM "+relation+" LIMIT 1").Scan(&yearType))
	require.Equal(t, "BIGINT", yearType)
}

func TestSink_Write_Unpartitioned(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, conn := testutil.NewEngine(t)
	table, err := etl.Materialize(ctx, conn, "artists", `
		SELECT * FROM (VALUES
			('AR1', 'Band', 'Oslo', 59.9::DOUBLE, 10.7::DOUBLE),
			('AR2', 'Solo', NULL, NULL::DOUBLE, NULL::DOUBLE)
		) AS t(artist_id, name, location, latitude, longitude)`)
	require.NoError(t, err)
	info, _ := schema.Star.Table(schema.Artists)

	dest := "file://" + filepath.Join(t.TempDir(), "artists")
	res, err := newWriter(t).Write(ctx, conn, table, dest, info)
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Rows)
	require.Equal(t, int64(1), res.Partitions)

	path, err := duck.LocalPath(dest)
	require.NoError(t, err)
	entries, err := os.ReadDir(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, unpartitionedFile, entries[0].Name())

	relation, err := Relation(dest, info)
	require.NoError(t, err)
	count, err := duck.CountRows(ctx, conn, relation)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

type failingStore struct{}

func (failingStore) Clear(context.Context, string) error { return errors.New("boom") }
func (failingStore) Reset(context.Context, string) error { return errors.New("boom") }

func TestSink_Write_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, conn := testutil.NewEngine(t)
	table := seedSongs(t, conn)
	info, _ := schema.Star.Table(schema.Songs)

	w, err := NewWriter(Config{Logger: testutil.NewLogger(), Store: failingStore{}})
	require.NoError(t, err)
	_, err = w.Write(ctx, conn, table, t.TempDir(), info)
	require.ErrorContains(t, err, "failed to reset")

	_, err = newWriter(t).Write(ctx, conn, etl.Table{Name: "missing"}, filepath.Join(t.TempDir(), "x"), info)
	require.ErrorContains(t, err, "failed to write missing")

	_, err = NewWriter(Config{Logger: testutil.NewLogger()})
	require.ErrorContains(t, err, "store is required")
}

func TestSink_Relation(t *testing.T) {
	t.Parallel()

	info, _ := schema.Star.Table(schema.Time)
	rel, err := Relation("s3://bucket/out/time", info)
	require.NoError(t, err)
	require.Contains(t, rel, "'s3://bucket/out/time/**/*.parquet'")
	require.Contains(t, rel, "hive_types = {'year': BIGINT, 'month': BIGINT}")

	_, err = Relation("ftp://x", info)
	require.ErrorContains(t, err, "invalid destination")
}

func TestSink_Exists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, conn := testutil.NewEngine(t)
	w := newWriter(t)
	info, _ := schema.Star.Table(schema.Songs)
	root := t.TempDir()

	ok, err := Exists(ctx, conn, filepath.Join(root, "never_written"), info)
	require.NoError(t, err)
	require.False(t, ok)

	empty, err := etl.Materialize(ctx, conn, "no_songs", "SELECT * FROM "+seedSongs(t, conn).Ident()+" WHERE false")
	require.NoError(t, err)
	res, err := w.Write(ctx, conn, empty, filepath.Join(root, "empty"), info)
	require.NoError(t, err)
	require.Zero(t, res.Rows)
	ok, err = Exists(ctx, conn, filepath.Join(root, "empty"), info)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = w.Write(ctx, conn, seedSongs(t, conn), filepath.Join(root, "songs"), info)
	require.NoError(t, err)
	ok, err = Exists(ctx, conn, filepath.Join(root, "songs"), info)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = Exists(ctx, conn, "ftp://x", info)
	require.ErrorContains(t, err, "invalid destination")
}
