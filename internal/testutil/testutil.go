// Package testutil builds in-memory engines and on-disk JSON fixtures shaped like the
// song and log datasets.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/malbeclabs/playlake/pkg/duck"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/minio"
)

func NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// NewEngine returns an in-memory engine and one connection to it, both closed on test
// cleanup.
func NewEngine(t *testing.T) (*duck.Engine, duck.Connection) {
	t.Helper()

	ctx := context.Background()
	engine, err := duck.NewEngine(ctx, duck.EngineConfig{Logger: NewLogger(), Threads: 2})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	conn, err := engine.Conn(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return engine, conn
}

// Song is one song_data record.
type Song struct {
	NumSongs        int64    `json:"num_songs"`
	ArtistID        string   `json:"artist_id"`
	ArtistLatitude  *float64 `json:"artist_latitude"`
	ArtistLongitude *float64 `json:"artist_longitude"`
	ArtistLocation  string   `json:"artist_location"`
	ArtistName      string   `json:"artist_name"`
	SongID          string   `json:"song_id"`
	Title           string   `json:"title"`
	Duration        float64  `json:"duration"`
	Year            int64    `json:"year"`
}

// Event is one log_data record.
type Event struct {
	Artist        *string  `json:"artist"`
	Auth          string   `json:"auth"`
	FirstName     string   `json:"firstName"`
	Gender        string   `json:"gender"`
	ItemInSession int64    `json:"itemInSession"`
	LastName      string   `json:"lastName"`
	Length        *float64 `json:"length"`
	Level         string   `json:"level"`
	Location      string   `json:"location"`
	Method        string   `json:"method"`
	Page          string   `json:"page"`
	Registration  float64  `json:"registration"`
	SessionID     int64    `json:"sessionId"`
	Song          *string  `json:"song"`
	Status        int64    `json:"status"`
	TS            int64    `json:"ts"`
	UserAgent     string   `json:"userAgent"`
	UserID        string   `json:"userId"`
}

func Ptr[T any](v T) *T {
	return &v
}

// WriteSongs writes each song to its own file under root/song_data/A/B/C/, matching the
// four-level layout of the catalog dataset.
func WriteSongs(t *testing.T, root string, songs ...Song) {
	t.Helper()

	dir := filepath.Join(root, "song_data", "A", "B", "C")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for i, s := range songs {
		data, err := json.Marshal(s)
		require.NoError(t, err)
		name := filepath.Join(dir, s.SongID+"-"+strconv.Itoa(i)+".json")
		require.NoError(t, os.WriteFile(name, append(data, '\n'), 0o644))
	}
}

// WriteEvents writes events as one newline-delimited file under
// root/log_data/YYYY/MM/, matching the three-level layout of the event dataset.
func WriteEvents(t *testing.T, root, year, month, file string, events ...Event) {
	t.Helper()

	dir := filepath.Join(root, "log_data", year, month)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	f, err := os.Create(filepath.Join(dir, file))
	require.NoError(t, err)
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, e := range events {
		require.NoError(t, enc.Encode(e))
	}
}

// PlayEvent returns a NextSong event for user at ts.
func PlayEvent(userID string, ts int64, song, artist string) Event {
	return Event{
		Artist:    Ptr(artist),
		Auth:      "Logged In",
		FirstName: "First" + userID,
		Gender:    "F",
		LastName:  "Last" + userID,
		Length:    Ptr(200.5),
		Level:     "free",
		Location:  "San Jose-Sunnyvale-Santa Clara, CA",
		Method:    "PUT",
		Page:      "NextSong",
		SessionID: 100,
		Song:      Ptr(song),
		Status:    200,
		TS:        ts,
		UserAgent: "Mozilla/5.0",
		UserID:    userID,
	}
}

// StartMinIO runs a MinIO container for the test and returns a config pointing at it.
// Skipped under -short.
func StartMinIO(t *testing.T) *duck.S3Config {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MinIO test in short mode")
	}

	ctx := context.Background()
	container, err := minio.Run(ctx, "minio/minio:latest",
		minio.WithUsername("minioadmin"),
		minio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to cleanup minio container: %v", err)
		}
	})

	// DuckDB resolves localhost inconsistently across network setups.
	host, err := container.Host(ctx)
	require.NoError(t, err)
	if host == "localhost" {
		host = "127.0.0.1"
	}
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	return &duck.S3Config{
		AccessKeyID:     container.Username,
		SecretAccessKey: container.Password,
		Endpoint:        fmt.Sprintf("%s:%s", host, port.Port()),
		Region:          "us-east-1",
		UseSSL:          false,
		URLStyle:        "path",
	}
}
