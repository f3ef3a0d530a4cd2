// Package etl holds the row-set type shared by the transformation stages. A row-set is
// a table resident in the query engine; stages read tables by name and materialize new
// ones, never mutating their inputs.
package etl

import (
	"context"
	"fmt"

	"github.com/malbeclabs/playlake/pkg/duck"
)

// Table is an engine-resident row-set.
type Table struct {
	Name string
}

// Ident returns the quoted identifier for use in SQL.
func (t Table) Ident() string {
	return duck.QuoteIdent(t.Name)
}

// Count returns the number of rows in the table.
func (t Table) Count(ctx context.Context, conn duck.Connection) (int64, error) {
	return duck.CountRows(ctx, conn, t.Ident())
}

// Materialize creates (or replaces) the named table from query.
func Materialize(ctx context.Context, conn duck.Connection, name, query string) (Table, error) {
	stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS %s", duck.QuoteIdent(name), query)
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return Table{}, fmt.Errorf("failed to materialize %s: %w", name, err)
	}
	return Table{Name: name}, nil
}
