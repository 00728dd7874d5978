package schema

import (
	"fmt"

	"github.com/roach88/fleetcrawl/internal/ir"
)

// Dialect captures the differences between the supported SQL backends.
type Dialect interface {
	// Name is the driver-facing name: "sqlite" or "postgres".
	Name() string

	// Placeholder returns the n-th (1-based) bind parameter.
	Placeholder(n int) string

	// ColumnType maps a column type to the backend's SQL type.
	ColumnType(t ir.ColumnType) string

	// Cast wraps a bind parameter so its type is known where the backend
	// cannot infer it, such as the select list of INSERT ... SELECT.
	Cast(param string, t ir.ColumnType) string

	// ColumnsQuery lists the existing column names of a table. The table
	// name is bound as the first parameter.
	ColumnsQuery() string
}

// SQLite is the dialect for github.com/mattn/go-sqlite3.
var SQLite Dialect = sqliteDialect{}

// Postgres is the dialect for github.com/jackc/pgx/v5/stdlib.
var Postgres Dialect = postgresDialect{}

// DialectByName resolves a configured driver name.
func DialectByName(name string) (Dialect, error) {
	switch name {
	case "sqlite", "sqlite3", "":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return nil, fmt.Errorf("unknown database dialect %q", name)
	}
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Placeholder(n int) string { return fmt.Sprintf("?%d", n) }

func (sqliteDialect) ColumnType(t ir.ColumnType) string {
	switch t {
	case ir.ColumnInteger:
		return "INTEGER"
	case ir.ColumnBoolean:
		return "BOOLEAN"
	case ir.ColumnTimestamp:
		return "TIMESTAMP"
	default:
		// text, json and uuid are all stored as TEXT.
		return "TEXT"
	}
}

func (sqliteDialect) Cast(param string, _ ir.ColumnType) string { return param }

func (sqliteDialect) ColumnsQuery() string {
	return "SELECT name FROM pragma_table_info(?1) ORDER BY cid"
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) ColumnType(t ir.ColumnType) string {
	switch t {
	case ir.ColumnInteger:
		return "BIGINT"
	case ir.ColumnBoolean:
		return "BOOLEAN"
	case ir.ColumnTimestamp:
		return "TIMESTAMPTZ"
	case ir.ColumnJSON:
		return "JSONB"
	case ir.ColumnUUID:
		return "UUID"
	default:
		return "TEXT"
	}
}

func (d postgresDialect) Cast(param string, t ir.ColumnType) string {
	return fmt.Sprintf("CAST(%s AS %s)", param, d.ColumnType(t))
}

func (postgresDialect) ColumnsQuery() string {
	return "SELECT column_name FROM information_schema.columns " +
		"WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position"
}
