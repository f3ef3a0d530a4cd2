package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/malbeclabs/playlake/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestStorage_Clear_Local(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := New(ctx, Config{Logger: testutil.NewLogger()})
	require.NoError(t, err)

	root := t.TempDir()
	table := filepath.Join(root, "songs")
	require.NoError(t, os.MkdirAll(filepath.Join(table, "year=2001", "artist_id=AR1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(table, "year=2001", "artist_id=AR1", "data_0.parquet"), []byte("x"), 0o644))
	sibling := filepath.Join(root, "artists")
	require.NoError(t, os.MkdirAll(sibling, 0o755))

	require.NoError(t, store.Clear(ctx, "file://"+table))
	_, err = os.Stat(table)
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(sibling)
	require.NoError(t, err)

	// Clearing again is a no-op.
	require.NoError(t, store.Clear(ctx, table))
}

func TestStorage_Reset_Local(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := New(ctx, Config{Logger: testutil.NewLogger()})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "out", "users")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "stale.parquet"), []byte("x"), 0o644))

	require.NoError(t, store.Reset(ctx, dest))
	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestStorage_Clear_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := New(ctx, Config{Logger: testutil.NewLogger()})
	require.NoError(t, err)

	require.ErrorContains(t, store.Clear(ctx, "gs://bucket/x"), "must start with file:// or s3://")
	require.ErrorContains(t, store.Clear(ctx, "/"), "refusing to clear filesystem root")
	require.ErrorContains(t, store.Clear(ctx, "s3://bucket/x"), "store has no S3 config")
}

func TestStorage_New_Validate(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.ErrorContains(t, err, "logger is required")
}

func TestStorage_IsLocalEndpoint(t *testing.T) {
	t.Parallel()

	require.True(t, isLocalEndpoint("localhost:9000"))
	require.True(t, isLocalEndpoint("http://127.0.0.1:9000"))
	require.True(t, isLocalEndpoint("host.docker.internal:9000"))
	require.False(t, isLocalEndpoint("s3.us-west-2.amazonaws.com"))
	require.False(t, isLocalEndpoint(""))
}

func TestStorage_MinIO(t *testing.T) {
	s3cfg := testutil.StartMinIO(t)
	ctx := context.Background()

	store, err := New(ctx, Config{Logger: testutil.NewLogger(), S3: s3cfg})
	require.NoError(t, err)

	require.NoError(t, store.EnsureBucket(ctx, "s3://playlake-test/out"))
	// Existing bucket is left alone.
	require.NoError(t, store.EnsureBucket(ctx, "s3://playlake-test/out"))

	for _, key := range []string{"out/songs/year=2001/data_0.parquet", "out/songs/year=2002/data_0.parquet", "out/artists/data_0.parquet"} {
		_, err := store.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String("playlake-test"),
			Key:    aws.String(key),
			Body:   bytes.NewReader([]byte("x")),
		})
		require.NoError(t, err)
	}

	require.NoError(t, store.Clear(ctx, "s3://playlake-test/out/songs"))

	out, err := store.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String("playlake-test")})
	require.NoError(t, err)
	require.Len(t, out.Contents, 1)
	require.Equal(t, "out/artists/data_0.parquet", aws.ToString(out.Contents[0].Key))

	require.ErrorContains(t, store.Clear(ctx, "s3://playlake-test"), "refusing to clear bucket root")
}
