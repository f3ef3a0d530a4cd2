package duck

import (
	"context"
	"fmt"
	"strings"
)

// QuoteLiteral renders s as a single-quoted SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteIdent renders s as a double-quoted SQL identifier.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// CountRows returns the number of rows in the given relation, which may be a table name
// or any parenthesized subquery / table function call.
func CountRows(ctx context.Context, conn Connection, relation string) (int64, error) {
	var count int64
	if err := conn.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", relation)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", relation, err)
	}
	return count, nil
}

// DropTable drops an engine-resident table if it exists.
func DropTable(ctx context.Context, conn Connection, name string) error {
	if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+QuoteIdent(name)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", name, err)
	}
	return nil
}
