package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/fleetcrawl/internal/ir"
	"github.com/roach88/fleetcrawl/internal/schema"
)

// marshalJSON serializes a payload field to canonical JSON text. Absent
// payloads are stored as SQL NULL.
func marshalJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// encodeColumn converts an observed column value to its bind parameter.
// Values are checked against the declared type so both backends reject
// the same inputs.
func encodeColumn(col ir.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch col.Type {
	case ir.ColumnText:
		switch s := v.(type) {
		case string:
			return s, nil
		case fmt.Stringer:
			return s.String(), nil
		}
	case ir.ColumnInteger:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case uint32:
			return int64(n), nil
		case float64:
			if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
				return int64(n), nil
			}
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
		}
	case ir.ColumnBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case ir.ColumnTimestamp:
		switch ts := v.(type) {
		case time.Time:
			return ts.UTC(), nil
		case *time.Time:
			if ts == nil {
				return nil, nil
			}
			return ts.UTC(), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, ts)
			if err == nil {
				return parsed.UTC(), nil
			}
		}
	case ir.ColumnJSON:
		return marshalJSON(v)
	case ir.ColumnUUID:
		switch id := v.(type) {
		case uuid.UUID:
			return id.String(), nil
		case string:
			parsed, err := uuid.Parse(id)
			if err == nil {
				return parsed.String(), nil
			}
		}
	}
	return nil, fmt.Errorf("column %s: %T value %v is not a valid %s", col.Name, v, v, col.Type)
}

// decodeColumn normalizes a scanned value to the Go type of the column:
// string, int64, bool, time.Time or ir.IRValue.
func decodeColumn(t ir.ColumnType, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}

	switch t {
	case ir.ColumnInteger:
		switch n := raw.(type) {
		case int64:
			return n, nil
		case float64:
			return int64(n), nil
		}
	case ir.ColumnBoolean:
		switch b := raw.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		}
	case ir.ColumnTimestamp:
		return parseTime(raw)
	case ir.ColumnJSON:
		switch s := raw.(type) {
		case string:
			return ir.FromJSON([]byte(s))
		case map[string]any, []any:
			return ir.FromAny(s)
		}
	default:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return fmt.Sprint(raw), nil
	}
	return nil, fmt.Errorf("cannot decode %T as %s", raw, t)
}

func parseTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		s := strings.TrimSuffix(v, "Z")
		for _, layout := range sqlite3.SQLiteTimestampFormats {
			if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return ts.UTC(), nil
			}
		}
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return ts.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
	case int64:
		return time.Unix(v, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("cannot decode %T as timestamp", raw)
	}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one row selected with schema.ColumnNames order,
// optionally followed by display_name.
func scanRecord(e ir.EntityType, row rowScanner, withDisplayName bool) (ir.VersionRecord, error) {
	cols := schema.LogColumns(e)
	n := len(cols)
	if withDisplayName {
		n++
	}
	raw := make([]any, n)
	dest := make([]any, n)
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := row.Scan(dest...); err != nil {
		return ir.VersionRecord{}, err
	}

	rec := ir.VersionRecord{Entity: e.Name}
	refByColumn := make(map[string]string, len(e.References))
	for _, r := range e.References {
		refByColumn[r.ColumnName()] = r.Name
	}

	for i, c := range cols {
		v, err := decodeColumn(c.Type, raw[i])
		if err != nil {
			return ir.VersionRecord{}, fmt.Errorf("scan %s.%s: %w", e.LogTable(), c.Name, err)
		}
		switch c.Name {
		case "version_id":
			rec.VersionID, _ = v.(string)
		case "node":
			rec.Node, _ = v.(string)
		case "definition":
			rec.Definition = irOrNull(v)
		case "metadata":
			rec.Metadata = irOrNull(v)
		case "specification":
			rec.Specification = irOrNull(v)
		case "status":
			rec.Status = irOrNull(v)
		case "content_hash":
			rec.ContentHash, _ = v.(string)
		case "observed_at":
			rec.ObservedAt, _ = v.(time.Time)
		case "deleted":
			rec.Deleted, _ = v.(bool)
		default:
			if ref, ok := refByColumn[c.Name]; ok {
				if v != nil {
					if rec.References == nil {
						rec.References = make(map[string]string)
					}
					rec.References[ref], _ = v.(string)
				}
				continue
			}
			if rec.Columns == nil {
				rec.Columns = make(map[string]any)
			}
			rec.Columns[c.Name] = v
		}
	}

	if withDisplayName && raw[n-1] != nil {
		switch dn := raw[n-1].(type) {
		case []byte:
			rec.DisplayName = string(dn)
		default:
			rec.DisplayName = fmt.Sprint(dn)
		}
	}
	return rec, nil
}

func irOrNull(v any) ir.IRValue {
	if iv, ok := v.(ir.IRValue); ok {
		return iv
	}
	return ir.IRNull{}
}

// scanRecords drains rows into records, returning an empty slice rather
// than nil.
func scanRecords(e ir.EntityType, rows *sql.Rows, withDisplayName bool) ([]ir.VersionRecord, error) {
	defer rows.Close()
	out := []ir.VersionRecord{}
	for rows.Next() {
		rec, err := scanRecord(e, rows, withDisplayName)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
