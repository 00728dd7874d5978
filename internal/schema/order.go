package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/fleetcrawl/internal/ir"
)

// Levels groups entity types so that every reference target lands in an
// earlier level than the types referencing it. Types within a level are
// sorted by name. References to types outside the set are ignored; a
// reference cycle (self-references included) is an error.
func Levels(entities []ir.EntityType) ([][]ir.EntityType, error) {
	byName := make(map[string]ir.EntityType, len(entities))
	for _, e := range entities {
		if _, dup := byName[e.Name]; dup {
			return nil, fmt.Errorf("entity %s declared twice", e.Name)
		}
		byName[e.Name] = e
	}

	level := make(map[string]int, len(entities))
	remaining := len(entities)
	for depth := 0; remaining > 0; depth++ {
		var ready []string
		for name, e := range byName {
			if _, done := level[name]; done {
				continue
			}
			if dependenciesPlaced(e, byName, level, depth) {
				ready = append(ready, name)
			}
		}
		if len(ready) == 0 {
			var stuck []string
			for name := range byName {
				if _, done := level[name]; !done {
					stuck = append(stuck, name)
				}
			}
			sort.Strings(stuck)
			return nil, fmt.Errorf("reference cycle among entities: %s", strings.Join(stuck, ", "))
		}
		for _, name := range ready {
			level[name] = depth
		}
		remaining -= len(ready)
	}

	depth := 0
	for _, l := range level {
		depth = max(depth, l+1)
	}
	levels := make([][]ir.EntityType, depth)
	for name, l := range level {
		levels[l] = append(levels[l], byName[name])
	}
	for _, group := range levels {
		sort.Slice(group, func(i, j int) bool { return group[i].Name < group[j].Name })
	}
	return levels, nil
}

// dependenciesPlaced reports whether all in-set targets of e sit in a level
// strictly below depth.
func dependenciesPlaced(e ir.EntityType, byName map[string]ir.EntityType, level map[string]int, depth int) bool {
	for _, r := range e.References {
		if _, inSet := byName[r.Target]; !inSet {
			continue
		}
		l, placed := level[r.Target]
		if !placed || l >= depth {
			return false
		}
	}
	return true
}

// Flatten returns the entity types of levels in dependency order.
func Flatten(levels [][]ir.EntityType) []ir.EntityType {
	var out []ir.EntityType
	for _, group := range levels {
		out = append(out, group...)
	}
	return out
}
