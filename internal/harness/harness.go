package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/fleetcrawl/internal/ir"
	"github.com/roach88/fleetcrawl/internal/store"
	"github.com/roach88/fleetcrawl/internal/testutil"
)

// Harness executes the steps of one scenario.
type Harness struct {
	store    *store.Store
	entities map[string]ir.EntityType
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with deterministic
// version ids and clock. The returned error reports setup problems such as
// a descriptor that cannot be provisioned; failed operations and
// assertions are reported on the Result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:",
		store.WithIDGenerator(testutil.NewSequentialIDs()),
		store.WithClock(testutil.NewStepClock()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.ProvisionAll(ctx, scenario.Entities); err != nil {
		return nil, fmt.Errorf("failed to provision entities: %w", err)
	}

	h := &Harness{store: st, entities: make(map[string]ir.EntityType, len(scenario.Entities))}
	for _, e := range scenario.Entities {
		h.entities[e.Name] = e
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	actx := &AssertionContext{Store: st, Ctx: ctx, Entities: h.entities}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, step Step, result *Result) error {
	switch {
	case step.Upsert != nil:
		e, ok := h.entities[step.Upsert.Entity]
		if !ok {
			return fmt.Errorf("unknown entity %q", step.Upsert.Entity)
		}
		for _, obs := range step.Upsert.Observations {
			result.addEvent(h.upsert(ctx, e, obs))
		}
	case step.Sweep != nil:
		e, ok := h.entities[step.Sweep.Entity]
		if !ok {
			return fmt.Errorf("unknown entity %q", step.Sweep.Entity)
		}
		result.addEvent(h.sweep(ctx, e, step.Sweep.Observed))
	default:
		return errors.New("empty step")
	}
	return nil
}

func (h *Harness) upsert(ctx context.Context, e ir.EntityType, obs ir.Observation) TraceEvent {
	ev := TraceEvent{Type: EventUpsert, Entity: e.Name, LogicalID: obs.LogicalID}
	rec, err := h.store.Upsert(ctx, e, obs)
	if err != nil {
		ev.Error, ev.Message = ErrorKind(err), err.Error()
		return ev
	}
	ev.Node = rec.Node
	ev.VersionID = rec.VersionID
	ev.ContentHash = rec.ContentHash
	ev.Inserted = rec.Inserted
	return ev
}

func (h *Harness) sweep(ctx context.Context, e ir.EntityType, observed []string) TraceEvent {
	ev := TraceEvent{Type: EventSweep, Entity: e.Name}
	res, err := h.store.Sweep(ctx, e, observed)
	if err != nil {
		ev.Error, ev.Message = ErrorKind(err), err.Error()
		var oe *store.ObservationError
		if errors.As(err, &oe) {
			ev.LogicalID = oe.LogicalID
		}
		return ev
	}
	ev.Observed = res.Observed
	for _, rec := range res.Tombstones {
		ev.Tombstones = append(ev.Tombstones, Tombstone{Node: rec.Node, VersionID: rec.VersionID})
	}
	return ev
}

// ErrorKind classifies a store error for error assertions.
func ErrorKind(err error) string {
	switch {
	case store.IsReferenceError(err):
		return "reference"
	case store.IsMalformedDefinition(err):
		return "malformed"
	case store.IsObservationError(err):
		return "observation"
	case store.IsSchemaProvisionError(err):
		return "schema"
	case store.IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}
