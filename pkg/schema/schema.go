package schema

import (
	"fmt"
	"strings"

	"github.com/malbeclabs/playlake/pkg/duck"
)

type Schema struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Tables      []TableInfo `json:"tables"`
}

type TableInfo struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Columns     []ColumnInfo `json:"columns"`
	PartitionBy []string     `json:"partition_by,omitempty"`
}

type ColumnInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Table returns the named table, or false.
func (s *Schema) Table(name string) (TableInfo, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableInfo{}, false
}

// ColumnNames returns the column names in declaration order.
func (t TableInfo) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// ReadJSONColumns renders the columns={...} struct literal read_json uses to fix the
// schema of newline-delimited JSON input.
func (t TableInfo) ReadJSONColumns() string {
	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		parts = append(parts, fmt.Sprintf("%s: %s", duck.QuoteLiteral(c.Name), duck.QuoteLiteral(c.Type)))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
