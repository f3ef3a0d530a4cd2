package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/malbeclabs/playlake/pkg/duck"
	"github.com/malbeclabs/playlake/pkg/etl/facts"
	"github.com/malbeclabs/playlake/pkg/etl/sink"
	"github.com/malbeclabs/playlake/pkg/schema"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type QuarantineCmd struct{}

func NewQuarantineCmd() *QuarantineCmd {
	return &QuarantineCmd{}
}

func (c *QuarantineCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarantine",
		Short: "Print quarantined play events per reason",
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, err := cmd.Flags().GetInt("samples")
			if err != nil {
				return fmt.Errorf("failed to get samples flag: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			s, err := openSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			counts, err := SummarizeQuarantine(ctx, s.conn, s.output, samples)
			if err != nil {
				return err
			}
			renderQuarantine(cmd.OutOrStdout(), counts)
			return nil
		},
	}

	cmd.Flags().Int("samples", 3, "Number of distinct unmatched values to show per reason")

	return cmd
}

type ReasonCount struct {
	Reason  string
	Rows    int64
	Samples []string
}

// SummarizeQuarantine counts quarantine rows per reason and lists up to samples of the
// most frequent unmatched values for each: the song title, the artist name, or the ts.
// A run with nothing quarantined leaves no files and yields no counts.
func SummarizeQuarantine(ctx context.Context, conn duck.Connection, output string, samples int) ([]ReasonCount, error) {
	info, _ := schema.Star.Table(schema.SongplaysQuarantine)
	dest, err := duck.Join(output, info.Name)
	if err != nil {
		return nil, err
	}
	ok, err := sink.Exists(ctx, conn, dest, info)
	if err != nil || !ok {
		return nil, err
	}
	relation, err := sink.Relation(dest, info)
	if err != nil {
		return nil, err
	}
	samples = max(samples, 0)

	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`
		WITH q AS (
			SELECT
				reason,
				CASE reason
					WHEN %[2]s THEN song
					WHEN %[3]s THEN artist
					ELSE CAST(start_time AS VARCHAR)
				END AS value
			FROM %[1]s
		),
		ranked AS (
			SELECT reason, value, COUNT(*) AS n,
				row_number() OVER (PARTITION BY reason ORDER BY COUNT(*) DESC, value) AS pos
			FROM q
			GROUP BY reason, value
		)
		SELECT
			reason,
			CAST(SUM(n) AS BIGINT) AS total,
			coalesce(list(coalesce(value, '<null>') ORDER BY pos) FILTER (WHERE pos <= %[4]d), []::VARCHAR[]) AS samples
		FROM ranked
		GROUP BY reason
		ORDER BY reason`,
		relation, duck.QuoteLiteral(facts.ReasonSongUnmatched), duck.QuoteLiteral(facts.ReasonArtistUnmatched), samples))
	if err != nil {
		return nil, fmt.Errorf("failed to read quarantine from %s: %w", duck.RedactedStorageURI(dest), err)
	}
	defer rows.Close()

	var out []ReasonCount
	for rows.Next() {
		var rc ReasonCount
		var list []any
		if err := rows.Scan(&rc.Reason, &rc.Rows, &list); err != nil {
			return nil, fmt.Errorf("failed to scan quarantine summary: %w", err)
		}
		for _, v := range list {
			rc.Samples = append(rc.Samples, fmt.Sprint(v))
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func renderQuarantine(w io.Writer, counts []ReasonCount) {
	if len(counts) == 0 {
		fmt.Fprintln(w, "No quarantined play events.")
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetRowLine(true)
	table.SetHeader([]string{"Reason", "Rows", "Most Frequent"})
	for _, c := range counts {
		table.Append([]string{c.Reason, fmt.Sprintf("%d", c.Rows), fmt.Sprintf("%v", c.Samples)})
	}
	table.Render()
}
