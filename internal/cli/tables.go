package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/malbeclabs/playlake/pkg/duck"
	"github.com/malbeclabs/playlake/pkg/etl/sink"
	"github.com/malbeclabs/playlake/pkg/schema"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type TablesCmd struct{}

func NewTablesCmd() *TablesCmd {
	return &TablesCmd{}
}

func (c *TablesCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "Print row and partition counts of each output table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			s, err := openSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			summaries, err := SummarizeTables(ctx, s.conn, s.output)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Output:", duck.RedactedStorageURI(s.output))
			renderTables(cmd.OutOrStdout(), summaries)
			return nil
		},
	}
}

// TableSummary describes one output table as found in storage. Missing is set when no
// files could be read for the table.
type TableSummary struct {
	Table       string
	PartitionBy []string
	Rows        int64
	Partitions  int64
	Missing     bool
}

// SummarizeTables reads each star-schema table back from output.
func SummarizeTables(ctx context.Context, conn duck.Connection, output string) ([]TableSummary, error) {
	summaries := make([]TableSummary, 0, len(schema.Star.Tables))
	for _, info := range schema.Star.Tables {
		dest, err := duck.Join(output, info.Name)
		if err != nil {
			return nil, err
		}
		summary := TableSummary{Table: info.Name, PartitionBy: info.PartitionBy}
		ok, err := sink.Exists(ctx, conn, dest, info)
		if err != nil {
			return nil, err
		}
		if !ok {
			summary.Missing = true
			summaries = append(summaries, summary)
			continue
		}

		relation, err := sink.Relation(dest, info)
		if err != nil {
			return nil, err
		}
		summary.Rows, err = duck.CountRows(ctx, conn, relation)
		if err != nil {
			return nil, err
		}
		summary.Partitions = 1

		if len(info.PartitionBy) > 0 {
			cols := make([]string, len(info.PartitionBy))
			for i, p := range info.PartitionBy {
				cols[i] = duck.QuoteIdent(p)
			}
			summary.Partitions, err = duck.CountRows(ctx, conn,
				fmt.Sprintf("(SELECT DISTINCT %s FROM %s)", strings.Join(cols, ", "), relation))
			if err != nil {
				return nil, err
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func renderTables(w io.Writer, summaries []TableSummary) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader([]string{"Table", "Partitioned By", "Rows", "Partitions"})

	for _, s := range summaries {
		partitionBy := strings.Join(s.PartitionBy, ", ")
		if partitionBy == "" {
			partitionBy = "-"
		}
		rows := fmt.Sprintf("%d", s.Rows)
		partitions := fmt.Sprintf("%d", s.Partitions)
		if s.Missing {
			rows, partitions = "missing", "missing"
		}
		table.Append([]string{s.Table, partitionBy, rows, partitions})
	}
	table.Render()
}
