// Package file observes entities described by YAML or JSON documents on
// disk. It backs fixtures, air-gapped inventories and anything exported by
// another tool.
package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fleetcrawl/internal/connector"
	"github.com/roach88/fleetcrawl/internal/ir"
)

// Document is one file, or one YAML document within a file.
//
//	entity: widget
//	observations:
//	  - logical_id: w1
//	    definition: {color: red}
type Document struct {
	Entity       string           `yaml:"entity"`
	Observations []ir.Observation `yaml:"observations"`
}

// Connector reads the observations of one entity type from a directory.
// Every *.yaml, *.yml and *.json file in the directory (not recursive) is
// read on each Observe; documents for other entity types are ignored.
type Connector struct {
	entity ir.EntityType
	dir    string
}

// New creates a file connector for entity rooted at dir.
func New(entity ir.EntityType, dir string) *Connector {
	return &Connector{entity: entity, dir: dir}
}

// Connectors creates one file connector per entity type, all reading dir.
func Connectors(entities []ir.EntityType, dir string) []connector.Connector {
	out := make([]connector.Connector, len(entities))
	for i, e := range entities {
		out[i] = New(e, dir)
	}
	return out
}

// Entity implements connector.Connector.
func (c *Connector) Entity() ir.EntityType { return c.entity }

// Observe implements connector.Connector. A file that cannot be read or
// parsed fails the whole observation.
func (c *Connector) Observe(ctx context.Context) ([]ir.Observation, error) {
	files, err := FindDocuments(c.dir)
	if err != nil {
		return nil, err
	}

	var out []ir.Observation
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		docs, err := ReadDocuments(path)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			if doc.Entity == c.entity.Name {
				out = append(out, doc.Observations...)
			}
		}
	}
	return out, nil
}

// FindDocuments lists the document files of dir in name order.
func FindDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read observation directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// ReadDocuments parses every document in a file with strict field
// checking. JSON files are parsed as YAML.
func ReadDocuments(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var docs []Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	for {
		var doc Document
		err := decoder.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: failed to parse: %w", path, err)
		}
		if doc.Entity == "" {
			return nil, fmt.Errorf("%s: document %d has no entity", path, len(docs)+1)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
