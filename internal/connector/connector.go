// Package connector defines the source side of a crawl: something that
// knows one entity type and can list every object of that type.
package connector

import (
	"context"
	"fmt"

	"github.com/roach88/fleetcrawl/internal/ir"
)

// Connector observes the complete current population of one entity type.
//
// Observe must return every object that exists. Anything it leaves out is
// treated as deleted by the sweep that follows, so a connector that cannot
// list everything must return an error instead of a partial result.
type Connector interface {
	Entity() ir.EntityType
	Observe(ctx context.Context) ([]ir.Observation, error)
}

// Static serves a fixed list of observations.
type Static struct {
	Type         ir.EntityType
	Observations []ir.Observation
	Err          error
}

// Entity implements Connector.
func (s *Static) Entity() ir.EntityType { return s.Type }

// Observe implements Connector.
func (s *Static) Observe(ctx context.Context) ([]ir.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]ir.Observation(nil), s.Observations...), nil
}

// Func adapts a function to Connector.
type Func struct {
	Type ir.EntityType
	Fn   func(ctx context.Context) ([]ir.Observation, error)
}

// Entity implements Connector.
func (f Func) Entity() ir.EntityType { return f.Type }

// Observe implements Connector.
func (f Func) Observe(ctx context.Context) ([]ir.Observation, error) { return f.Fn(ctx) }

// Entities returns the entity types of conns, rejecting duplicates.
func Entities(conns []Connector) ([]ir.EntityType, error) {
	seen := make(map[string]bool, len(conns))
	out := make([]ir.EntityType, 0, len(conns))
	for _, c := range conns {
		e := c.Entity()
		if seen[e.Name] {
			return nil, fmt.Errorf("entity type %s has more than one connector", e.Name)
		}
		seen[e.Name] = true
		out = append(out, e)
	}
	return out, nil
}
