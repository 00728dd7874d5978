package schema

import (
	"fmt"
	"strings"

	"github.com/roach88/fleetcrawl/internal/ir"
)

// Column is one physical column of a log table.
type Column struct {
	Name       string
	Type       ir.ColumnType
	Constraint string
}

// LogColumns returns the physical columns of the entity's log table in
// table order: identity, references, extra columns, payload, bookkeeping.
func LogColumns(e ir.EntityType) []Column {
	cols := []Column{
		{Name: "version_id", Type: ir.ColumnUUID, Constraint: "PRIMARY KEY"},
		{Name: "node", Type: ir.ColumnUUID, Constraint: "NOT NULL"},
	}
	for _, r := range e.References {
		cols = append(cols, Column{
			Name:       r.ColumnName(),
			Type:       ir.ColumnUUID,
			Constraint: fmt.Sprintf("REFERENCES %s (version_id)", ir.EntityType{Name: r.Target}.LogTable()),
		})
	}
	for _, c := range e.Columns {
		cols = append(cols, Column{Name: c.Name, Type: c.Type})
	}
	return append(cols,
		Column{Name: "definition", Type: ir.ColumnJSON},
		Column{Name: "metadata", Type: ir.ColumnJSON},
		Column{Name: "specification", Type: ir.ColumnJSON},
		Column{Name: "status", Type: ir.ColumnJSON},
		Column{Name: "content_hash", Type: ir.ColumnText, Constraint: "NOT NULL"},
		Column{Name: "observed_at", Type: ir.ColumnTimestamp, Constraint: "NOT NULL DEFAULT CURRENT_TIMESTAMP"},
		Column{Name: "deleted", Type: ir.ColumnBoolean, Constraint: "NOT NULL DEFAULT FALSE"},
	)
}

// ColumnNames returns the log column names in table order.
func ColumnNames(e ir.EntityType) []string {
	cols := LogColumns(e)
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func columnDef(d Dialect, c Column) string {
	def := c.Name + " " + d.ColumnType(c.Type)
	if c.Constraint != "" {
		def += " " + c.Constraint
	}
	return def
}

// Generate returns the DDL for an entity type, in execution order. Every
// statement is idempotent.
func Generate(d Dialect, e ir.EntityType) ([]string, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	stmts := []string{CreateTable(d, e)}
	stmts = append(stmts, Indexes(e)...)
	return append(stmts, View(e)...), nil
}

// CreateTable returns the CREATE TABLE statement for the log table.
func CreateTable(d Dialect, e ir.EntityType) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", e.LogTable())
	for _, c := range LogColumns(e) {
		fmt.Fprintf(&b, "  %s,\n", columnDef(d, c))
	}
	b.WriteString("  UNIQUE (node, content_hash, deleted)\n)")
	return b.String()
}

// AddColumn returns the additive migration for a column that exists in the
// descriptor but not yet in the table. Constraints other than references
// are dropped since existing rows have no value for the column.
func AddColumn(d Dialect, e ir.EntityType, name string) (string, error) {
	for _, c := range LogColumns(e) {
		if c.Name != name {
			continue
		}
		def := c.Name + " " + d.ColumnType(c.Type)
		if strings.HasPrefix(c.Constraint, "REFERENCES") {
			def += " " + c.Constraint
		} else if c.Constraint != "" {
			return "", fmt.Errorf("column %s.%s cannot be added to an existing table", e.LogTable(), name)
		}
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", e.LogTable(), def), nil
	}
	return "", fmt.Errorf("column %q is not declared on entity %s", name, e.Name)
}

// Indexes returns the secondary indexes of the log table.
func Indexes(e ir.EntityType) []string {
	t := e.LogTable()
	stmts := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_node_idx ON %s (node)", t, t),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_node_observed_idx ON %s (node, observed_at)", t, t),
	}
	for _, r := range e.References {
		col := r.ColumnName()
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_%s_idx ON %s (%s)", t, col, t, col))
	}
	return stmts
}

// View returns the statements that (re)create the current view. The view
// is dropped first so that added columns appear in it.
func View(e ir.EntityType) []string {
	selectList := strings.Join(ColumnNames(e), ", ")
	if e.NameExpression != "" {
		selectList += fmt.Sprintf(", (%s) AS display_name", e.NameExpression)
	}
	create := fmt.Sprintf("CREATE VIEW %s AS\n"+
		"SELECT %s\n"+
		"FROM (\n"+
		"  SELECT *, ROW_NUMBER() OVER (PARTITION BY node ORDER BY observed_at DESC, version_id DESC) AS row_rank\n"+
		"  FROM %s\n"+
		") ranked\n"+
		"WHERE row_rank = 1 AND deleted = FALSE",
		e.ViewName(), selectList, e.LogTable())
	return []string{
		fmt.Sprintf("DROP VIEW IF EXISTS %s", e.ViewName()),
		create,
	}
}

// Script renders statements as a single SQL script.
func Script(stmts []string) string {
	if len(stmts) == 0 {
		return ""
	}
	return strings.Join(stmts, ";\n\n") + ";\n"
}
