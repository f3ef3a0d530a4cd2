package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/malbeclabs/playlake/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestSource_Reader_SongData(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, conn := testutil.NewEngine(t)
	root := t.TempDir()

	testutil.WriteSongs(t, root,
		testutil.Song{SongID: "SOAAA", Title: "Intro", ArtistID: "ARAAA", ArtistName: "Band", Duration: 123.4, Year: 2001, ArtistLatitude: testutil.Ptr(35.1)},
		testutil.Song{SongID: "SOBBB", Title: "Outro", ArtistID: "ARBBB", ArtistName: "Other", Duration: 99, Year: 0},
	)
	// Files outside the four-level layout are not part of the dataset.
	require.NoError(t, os.WriteFile(filepath.Join(root, "song_data", "stray.json"), []byte(`{"song_id":"SOXXX"}`+"\n"), 0o644))

	table, err := NewReader(testutil.NewLogger()).Read(ctx, conn, SongData(root))
	require.NoError(t, err)
	require.Equal(t, "raw_song_data", table.Name)

	count, err := table.Count(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	var title string
	var year int64
	var lat, lon *float64
	err = conn.QueryRowContext(ctx, "SELECT title, year, artist_latitude, artist_longitude FROM raw_song_data WHERE song_id = 'SOAAA'").Scan(&title, &year, &lat, &lon)
	require.NoError(t, err)
	require.Equal(t, "Intro", title)
	require.Equal(t, int64(2001), year)
	require.NotNil(t, lat)
	require.InDelta(t, 35.1, *lat, 1e-9)
	require.Nil(t, lon)
}

func TestSource_Reader_LogData(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, conn := testutil.NewEngine(t)
	root := t.TempDir()

	home := testutil.Event{Page: "Home", UserID: "7", TS: 1541106106796, Level: "free"}
	testutil.WriteEvents(t, root, "2018", "11", "2018-11-01-events.json",
		testutil.PlayEvent("7", 1541106132796, "Hey", "Band"),
		home,
	)
	testutil.WriteEvents(t, root, "2018", "11", "2018-11-02-events.json",
		testutil.PlayEvent("8", 1541190000000, "Yo", "Other"),
	)

	table, err := NewReader(testutil.NewLogger()).Read(ctx, conn, LogData(root))
	require.NoError(t, err)

	count, err := table.Count(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	var song *string
	err = conn.QueryRowContext(ctx, "SELECT song FROM raw_log_data WHERE page = 'Home'").Scan(&song)
	require.NoError(t, err)
	require.Nil(t, song)
}

func TestSource_Reader_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, conn := testutil.NewEngine(t)
	reader := NewReader(testutil.NewLogger())

	t.Run("no matching files", func(t *testing.T) {
		_, err := reader.Read(ctx, conn, SongData(t.TempDir()))
		require.ErrorContains(t, err, "failed to read song_data")
	})

	t.Run("malformed json", func(t *testing.T) {
		root := t.TempDir()
		dir := filepath.Join(root, "log_data", "2018", "11")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json\n"), 0o644))

		_, err := reader.Read(ctx, conn, LogData(root))
		require.Error(t, err)
	})

	t.Run("invalid dataset", func(t *testing.T) {
		_, err := reader.Read(ctx, conn, Dataset{Root: t.TempDir()})
		require.ErrorContains(t, err, "invalid dataset")
	})
}
