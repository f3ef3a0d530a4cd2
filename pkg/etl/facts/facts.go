// Package facts builds the songplays fact table from play events and the song, artist
// and time dimensions, and reconciles the natural-key joins that feed it.
package facts

import (
	"context"
	"errors"
	"fmt"

	"github.com/malbeclabs/playlake/pkg/duck"
	"github.com/malbeclabs/playlake/pkg/etl"
	"github.com/malbeclabs/playlake/pkg/schema"
)

const (
	songLookup   = "song_lookup"
	artistLookup = "artist_lookup"

	// Joined holds every play event with its join results, matched or not.
	Joined = "songplays_joined"

	// partitionShift leaves room for 2^33 rows per (year, month) partition.
	partitionShift = 33
)

// Inputs are the row-sets the fact table is built from. Songs and Artists are SQL
// relations so they can be read back from storage rather than from the engine.
type Inputs struct {
	Plays   etl.Table
	Time    etl.Table
	Songs   string
	Artists string
}

func (in Inputs) Validate() error {
	if in.Plays.Name == "" {
		return errors.New("plays table is required")
	}
	if in.Time.Name == "" {
		return errors.New("time table is required")
	}
	if in.Songs == "" {
		return errors.New("songs relation is required")
	}
	if in.Artists == "" {
		return errors.New("artists relation is required")
	}
	return nil
}

type Output struct {
	Joined etl.Table
	Facts  etl.Table
}

// Build joins plays to songs by title and to artists by name, keeping unmatched plays
// with NULL ids, then to time by ts, dropping plays without a time row. A title or name
// shared by several catalog entries resolves to the smallest id so no play fans out.
//
// songplay_id packs the rank of the row's (year, month) partition above a counter local
// to that partition: unique across the table, increasing within a partition, and not
// contiguous.
func Build(ctx context.Context, conn duck.Connection, in Inputs) (Output, error) {
	if err := in.Validate(); err != nil {
		return Output{}, fmt.Errorf("invalid inputs: %w", err)
	}

	songs, err := etl.Materialize(ctx, conn, songLookup, fmt.Sprintf(`
		SELECT title, song_id
		FROM %s
		WHERE title IS NOT NULL AND song_id IS NOT NULL
		QUALIFY row_number() OVER (PARTITION BY title ORDER BY song_id) = 1`, in.Songs))
	if err != nil {
		return Output{}, err
	}
	defer func() { _ = duck.DropTable(ctx, conn, songs.Name) }()

	artists, err := etl.Materialize(ctx, conn, artistLookup, fmt.Sprintf(`
		SELECT name, artist_id
		FROM %s
		WHERE name IS NOT NULL AND artist_id IS NOT NULL
		QUALIFY row_number() OVER (PARTITION BY name ORDER BY artist_id) = 1`, in.Artists))
	if err != nil {
		return Output{}, err
	}
	defer func() { _ = duck.DropTable(ctx, conn, artists.Name) }()

	joined, err := etl.Materialize(ctx, conn, Joined, fmt.Sprintf(`
		SELECT
			p.ts AS start_time,
			p.userId AS user_id,
			p.level,
			s.song_id,
			a.artist_id,
			p.sessionId AS session_id,
			p.location,
			p.userAgent AS user_agent,
			t.year,
			t.month,
			p.song,
			p.artist,
			t.start_time IS NOT NULL AS time_matched
		FROM %s p
		LEFT JOIN %s s ON s.title = p.song
		LEFT JOIN %s a ON a.name = p.artist
		LEFT JOIN %s t ON t.start_time = p.ts`,
		in.Plays.Ident(), songs.Ident(), artists.Ident(), in.Time.Ident()))
	if err != nil {
		return Output{}, fmt.Errorf("failed to join play events: %w", err)
	}

	facts, err := etl.Materialize(ctx, conn, schema.Songplays, fmt.Sprintf(`
		SELECT
			((dense_rank() OVER (ORDER BY year, month) - 1) << %d)
				+ row_number() OVER (PARTITION BY year, month ORDER BY start_time, user_id, session_id) - 1
				AS songplay_id,
			start_time,
			user_id,
			level,
			song_id,
			artist_id,
			session_id,
			location,
			user_agent,
			year,
			month
		FROM %s
		WHERE time_matched`, partitionShift, joined.Ident()))
	if err != nil {
		return Output{}, fmt.Errorf("failed to build songplays: %w", err)
	}

	return Output{Joined: joined, Facts: facts}, nil
}
