package facts

import (
	"context"
	"fmt"

	"github.com/malbeclabs/playlake/pkg/duck"
	"github.com/malbeclabs/playlake/pkg/etl"
	"github.com/malbeclabs/playlake/pkg/metrics"
	"github.com/malbeclabs/playlake/pkg/schema"
)

// Quarantine reasons.
const (
	ReasonSongUnmatched   = "song_unmatched"
	ReasonArtistUnmatched = "artist_unmatched"
	ReasonTimeUnmatched   = "time_unmatched"
)

// Join labels for the match ratio gauge.
const (
	JoinSong   = "song"
	JoinArtist = "artist"
	JoinTime   = "time"
)

// Report summarizes how well play events matched the dimensions.
type Report struct {
	PlayEvents    int64
	FactRows      int64
	SongMatched   int64
	ArtistMatched int64
	TimeUnmatched int64
}

func ratio(n, d int64) float64 {
	if d == 0 {
		return 1
	}
	return float64(n) / float64(d)
}

// SongMatchRate is the fraction of fact rows with a song_id.
func (r Report) SongMatchRate() float64 { return ratio(r.SongMatched, r.FactRows) }

// ArtistMatchRate is the fraction of fact rows with an artist_id.
func (r Report) ArtistMatchRate() float64 { return ratio(r.ArtistMatched, r.FactRows) }

// TimeMatchRate is the fraction of play events that produced a fact row.
func (r Report) TimeMatchRate() float64 { return ratio(r.FactRows, r.PlayEvents) }

// Quarantined returns the number of quarantine rows per reason.
func (r Report) Quarantined() map[string]int64 {
	return map[string]int64{
		ReasonSongUnmatched:   r.FactRows - r.SongMatched,
		ReasonArtistUnmatched: r.FactRows - r.ArtistMatched,
		ReasonTimeUnmatched:   r.TimeUnmatched,
	}
}

// Export sets the match ratio and quarantine gauges.
func (r Report) Export() {
	metrics.JoinMatchRatio.WithLabelValues(JoinSong).Set(r.SongMatchRate())
	metrics.JoinMatchRatio.WithLabelValues(JoinArtist).Set(r.ArtistMatchRate())
	metrics.JoinMatchRatio.WithLabelValues(JoinTime).Set(r.TimeMatchRate())
	for reason, n := range r.Quarantined() {
		metrics.QuarantinedRows.WithLabelValues(reason).Set(float64(n))
	}
}

// Reconcile counts the join outcomes recorded in the joined table and materializes the
// quarantine: one row per fact row missing a song or artist reference, and one per play
// event dropped for lack of a time row. Fact rows are left as they are.
func Reconcile(ctx context.Context, conn duck.Connection, joined etl.Table) (Report, etl.Table, error) {
	var r Report
	err := conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE time_matched),
			COUNT(*) FILTER (WHERE time_matched AND song_id IS NOT NULL),
			COUNT(*) FILTER (WHERE time_matched AND artist_id IS NOT NULL),
			COUNT(*) FILTER (WHERE NOT time_matched)
		FROM %s`, joined.Ident()),
	).Scan(&r.PlayEvents, &r.FactRows, &r.SongMatched, &r.ArtistMatched, &r.TimeUnmatched)
	if err != nil {
		return Report{}, etl.Table{}, fmt.Errorf("failed to count join outcomes: %w", err)
	}

	cols := "start_time, user_id, session_id, song, artist"
	quarantine, err := etl.Materialize(ctx, conn, schema.SongplaysQuarantine, fmt.Sprintf(`
		SELECT %[2]s AS reason, %[1]s FROM %[5]s WHERE time_matched AND song_id IS NULL
		UNION ALL
		SELECT %[3]s AS reason, %[1]s FROM %[5]s WHERE time_matched AND artist_id IS NULL
		UNION ALL
		SELECT %[4]s AS reason, %[1]s FROM %[5]s WHERE NOT time_matched`,
		cols,
		duck.QuoteLiteral(ReasonSongUnmatched),
		duck.QuoteLiteral(ReasonArtistUnmatched),
		duck.QuoteLiteral(ReasonTimeUnmatched),
		joined.Ident()))
	if err != nil {
		return Report{}, etl.Table{}, fmt.Errorf("failed to build quarantine: %w", err)
	}

	return r, quarantine, nil
}
