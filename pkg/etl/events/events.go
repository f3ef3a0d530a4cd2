// Package events filters raw app events to song plays and derives the users and time
// dimensions from them.
package events

import (
	"context"
	"fmt"

	"github.com/malbeclabs/playlake/pkg/duck"
	"github.com/malbeclabs/playlake/pkg/etl"
	"github.com/malbeclabs/playlake/pkg/schema"
)

const (
	// PlayPage is the page value of an event that records a song play.
	PlayPage = "NextSong"

	// Plays is the filtered, date-augmented event table the fact builder consumes.
	Plays = "plays"

	// DateLayout is the strftime layout of the plays.date column.
	DateLayout = "%Y-%m-%d %H:%M:%S"
)

// FilterPlays keeps the NextSong events and adds a date column: ts truncated to whole
// seconds and rendered in UTC.
func FilterPlays(ctx context.Context, conn duck.Connection, raw etl.Table) (etl.Table, error) {
	query := fmt.Sprintf(`
		SELECT *, strftime(date_trunc('second', epoch_ms(ts)), %s) AS date
		FROM %s
		WHERE page = %s`,
		duck.QuoteLiteral(DateLayout), raw.Ident(), duck.QuoteLiteral(PlayPage))

	table, err := etl.Materialize(ctx, conn, Plays, query)
	if err != nil {
		return etl.Table{}, fmt.Errorf("failed to filter play events: %w", err)
	}
	return table, nil
}

// Users keeps each user's attributes from their latest play. Plays sharing the latest
// ts are ordered by the remaining columns.
func Users(ctx context.Context, conn duck.Connection, plays etl.Table) (etl.Table, error) {
	query := fmt.Sprintf(`
		SELECT
			userId AS user_id,
			firstName AS first_name,
			lastName AS last_name,
			gender,
			level
		FROM %s
		WHERE userId IS NOT NULL
		QUALIFY row_number() OVER (
			PARTITION BY userId
			ORDER BY ts DESC NULLS LAST, level NULLS LAST, firstName NULLS LAST,
				lastName NULLS LAST, gender NULLS LAST
		) = 1`, plays.Ident())

	table, err := etl.Materialize(ctx, conn, schema.Users, query)
	if err != nil {
		return etl.Table{}, fmt.Errorf("failed to derive users: %w", err)
	}
	return table, nil
}

// Time decomposes each distinct play timestamp into calendar fields. week is the ISO
// week; weekday counts from 1 = Sunday.
func Time(ctx context.Context, conn duck.Connection, plays etl.Table) (etl.Table, error) {
	query := fmt.Sprintf(`
		SELECT
			ts AS start_time,
			CAST(hour(d) AS BIGINT) AS hour,
			CAST(day(d) AS BIGINT) AS day,
			CAST(weekofyear(d) AS BIGINT) AS week,
			CAST(month(d) AS BIGINT) AS month,
			CAST(year(d) AS BIGINT) AS year,
			CAST(dayofweek(d) + 1 AS BIGINT) AS weekday
		FROM (
			SELECT DISTINCT ts, CAST(date AS TIMESTAMP) AS d
			FROM %s
			WHERE ts IS NOT NULL
		)`, plays.Ident())

	table, err := etl.Materialize(ctx, conn, schema.Time, query)
	if err != nil {
		return etl.Table{}, fmt.Errorf("failed to derive time: %w", err)
	}
	return table, nil
}
