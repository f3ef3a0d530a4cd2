// Package catalog derives the songs and artists dimensions from raw song catalog records.
//
// Both dimensions keep one row per identifier. When the catalog repeats an identifier
// the surviving row is the first by the remaining projected columns, so the choice is
// stable across runs and every column of the survivor comes from the same input record.
package catalog

import (
	"context"
	"fmt"

	"github.com/malbeclabs/playlake/pkg/duck"
	"github.com/malbeclabs/playlake/pkg/etl"
	"github.com/malbeclabs/playlake/pkg/schema"
)

// Songs projects raw catalog records to one row per song_id.
func Songs(ctx context.Context, conn duck.Connection, raw etl.Table) (etl.Table, error) {
	query := fmt.Sprintf(`
		SELECT song_id, title, artist_id, year, duration
		FROM %s
		WHERE song_id IS NOT NULL
		QUALIFY row_number() OVER (
			PARTITION BY song_id
			ORDER BY title NULLS LAST, artist_id NULLS LAST, year NULLS LAST, duration NULLS LAST
		) = 1`, raw.Ident())

	table, err := etl.Materialize(ctx, conn, schema.Songs, query)
	if err != nil {
		return etl.Table{}, fmt.Errorf("failed to derive songs: %w", err)
	}
	return table, nil
}

// Artists projects raw catalog records to one row per artist_id, renaming the artist_*
// fields.
func Artists(ctx context.Context, conn duck.Connection, raw etl.Table) (etl.Table, error) {
	query := fmt.Sprintf(`
		SELECT
			artist_id,
			artist_name AS name,
			artist_location AS location,
			artist_latitude AS latitude,
			artist_longitude AS longitude
		FROM %s
		WHERE artist_id IS NOT NULL
		QUALIFY row_number() OVER (
			PARTITION BY artist_id
			ORDER BY artist_name NULLS LAST, artist_location NULLS LAST,
				artist_latitude NULLS LAST, artist_longitude NULLS LAST
		) = 1`, raw.Ident())

	table, err := etl.Materialize(ctx, conn, schema.Artists, query)
	if err != nil {
		return etl.Table{}, fmt.Errorf("failed to derive artists: %w", err)
	}
	return table, nil
}
