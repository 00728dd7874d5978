package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionRecordJSONFieldNaming(t *testing.T) {
	rec := VersionRecord{
		VersionID:   "v1",
		Entity:      "widget",
		Node:        "n1",
		Definition:  IRObject{"color": IRString("red")},
		ContentHash: "abc",
		ObservedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	for _, key := range []string{`"version_id"`, `"content_hash"`, `"observed_at"`, `"deleted"`, `"inserted"`} {
		assert.Contains(t, string(data), key)
	}
	assert.NotContains(t, string(data), `"VersionID"`)
	assert.Contains(t, string(data), `"definition":{"color":"red"}`)
	assert.Contains(t, string(data), `"metadata":null`)
}

func TestReferenceColumnName(t *testing.T) {
	r := Reference{Name: "replica_set", Target: "kube_replica_set", Lookup: []string{"node"}}
	assert.Equal(t, "replica_set_id", r.ColumnName())
}

func TestEntityTypeLookups(t *testing.T) {
	e := EntityType{
		Name:       "kube_pod",
		Columns:    []Column{{Name: "name", Type: ColumnText}},
		References: []Reference{{Name: "replica_set", Target: "kube_replica_set", Lookup: []string{"node"}}},
	}

	c, ok := e.Column("name")
	require.True(t, ok)
	assert.Equal(t, ColumnText, c.Type)

	_, ok = e.Column("missing")
	assert.False(t, ok)

	r, ok := e.Reference("replica_set")
	require.True(t, ok)
	assert.Equal(t, "kube_replica_set", r.Target)
}
