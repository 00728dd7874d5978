package schema

import (
	"fmt"
	"strings"

	"github.com/roach88/fleetcrawl/internal/ir"
)

// Upsert returns the append-or-refresh statement for an entity's log. Bind
// parameters follow ColumnNames order. An existing row with the same
// (node, content_hash, deleted) has its definition replaced and is
// returned instead of a new one.
func Upsert(d Dialect, e ir.EntityType) string {
	names := ColumnNames(e)
	params := make([]string, len(names))
	for i := range names {
		params[i] = d.Placeholder(i + 1)
	}
	cols := strings.Join(names, ", ")
	return fmt.Sprintf("INSERT INTO %s (%s)\nVALUES (%s)\n"+
		"ON CONFLICT (node, content_hash, deleted) DO UPDATE SET definition = excluded.definition\n"+
		"RETURNING %s",
		e.LogTable(), cols, strings.Join(params, ", "), cols)
}

// Tombstone returns the statement that appends a deleted copy of a node's
// current row. Parameters: 1 version id, 2 observed at, 3 node. No row is
// returned when an identical tombstone already exists.
func Tombstone(d Dialect, e ir.EntityType) string {
	names := ColumnNames(e)
	selectList := make([]string, len(names))
	for i, name := range names {
		switch name {
		case "version_id":
			selectList[i] = d.Cast(d.Placeholder(1), ir.ColumnUUID)
		case "observed_at":
			selectList[i] = d.Cast(d.Placeholder(2), ir.ColumnTimestamp)
		case "deleted":
			selectList[i] = "TRUE"
		default:
			selectList[i] = name
		}
	}
	cols := strings.Join(names, ", ")
	return fmt.Sprintf("INSERT INTO %s (%s)\nSELECT %s\nFROM %s WHERE node = %s\n"+
		"ON CONFLICT (node, content_hash, deleted) DO NOTHING\n"+
		"RETURNING %s",
		e.LogTable(), cols, strings.Join(selectList, ", "), e.ViewName(), d.Placeholder(3), cols)
}

// LiveNodes lists the nodes present in the current view.
func LiveNodes(e ir.EntityType) string {
	return fmt.Sprintf("SELECT node FROM %s ORDER BY node", e.ViewName())
}

// Current selects every row of the current view, ordered by node. When the
// entity has a name expression the display_name column is appended.
func Current(e ir.EntityType) string {
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY node", viewSelectList(e), e.ViewName())
}

// History selects every log row of one node, oldest first.
func History(d Dialect, e ir.EntityType) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE node = %s ORDER BY observed_at, version_id",
		strings.Join(ColumnNames(e), ", "), e.LogTable(), d.Placeholder(1))
}

// CountLog counts all log rows, tombstones included.
func CountLog(e ir.EntityType) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", e.LogTable())
}

// Lookup selects current rows whose columns equal the bound values, newest
// first. Parameters follow the order of columns.
func Lookup(d Dialect, e ir.EntityType, columns []string) (string, error) {
	where, err := lookupWhere(d, e, columns)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY observed_at DESC, version_id DESC",
		viewSelectList(e), e.ViewName(), where), nil
}

// ResolveReference selects the version id of the newest current row of the
// target matching the lookup values.
func ResolveReference(d Dialect, target ir.EntityType, columns []string) (string, error) {
	where, err := lookupWhere(d, target, columns)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT version_id FROM %s WHERE %s ORDER BY observed_at DESC, version_id DESC LIMIT 1",
		target.ViewName(), where), nil
}

func lookupWhere(d Dialect, e ir.EntityType, columns []string) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("lookup on %s: no columns", e.ViewName())
	}
	conds := make([]string, len(columns))
	for i, c := range columns {
		if !e.HasColumn(c) {
			return "", fmt.Errorf("lookup on %s: unknown column %q", e.ViewName(), c)
		}
		conds[i] = fmt.Sprintf("%s = %s", c, d.Placeholder(i+1))
	}
	return strings.Join(conds, " AND "), nil
}

func viewSelectList(e ir.EntityType) string {
	list := strings.Join(ColumnNames(e), ", ")
	if e.NameExpression != "" {
		list += ", display_name"
	}
	return list
}
