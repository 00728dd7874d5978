package harness

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/fleetcrawl/internal/ir"
	"github.com/roach88/fleetcrawl/internal/store"
)

// AssertionContext gives assertions access to the final store.
type AssertionContext struct {
	Store    *store.Store
	Ctx      context.Context
	Entities map[string]ir.EntityType
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s", ev.Seq, ev.Type, ev.Entity, ev.LogicalID)
			if ev.Error != "" {
				fmt.Fprintf(&buf, " error=%s", ev.Error)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. Errors in the trace that no error assertion expects are
// reported as well.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var msgs []string

	expected := make(map[string]bool)
	for _, a := range assertions {
		if a.Type == AssertError {
			expected[a.LogicalID] = true
		}
	}
	for _, ev := range result.Trace {
		if ev.Error != "" && !expected[ev.LogicalID] {
			msgs = append(msgs, fmt.Sprintf("unexpected %s error at step %d (%s %s): %s",
				ev.Error, ev.Seq, ev.Type, ev.LogicalID, ev.Message))
		}
	}

	for i, a := range assertions {
		if err := evaluateAssertion(result.Trace, a, actx); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return msgs
}

func evaluateAssertion(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	if a.Type == AssertError {
		return assertError(trace, a)
	}

	e, ok := actx.Entities[a.Entity]
	if !ok {
		return fmt.Errorf("unknown entity %q", a.Entity)
	}

	switch a.Type {
	case AssertLogCount:
		n, err := actx.Store.CountLog(actx.Ctx, e)
		if err != nil {
			return err
		}
		return compareCount(AssertLogCount, e.Name, a.Count, n)
	case AssertCurrentCount:
		recs, err := actx.Store.Current(actx.Ctx, e)
		if err != nil {
			return err
		}
		return compareCount(AssertCurrentCount, e.Name, a.Count, len(recs))
	case AssertCurrentContains:
		return assertCurrentContains(actx, e, a)
	case AssertCurrentAbsent:
		recs, err := actx.Store.LookupCurrent(actx.Ctx, e, map[string]any{"node": a.LogicalID})
		if err != nil {
			return err
		}
		if len(recs) > 0 {
			return &AssertionError{
				Type:     AssertCurrentAbsent,
				Expected: fmt.Sprintf("%s %q not live", e.Name, a.LogicalID),
				Actual:   fmt.Sprintf("live as version %s", recs[0].VersionID),
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func compareCount(typ, entity string, want, got int) error {
	if want == got {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: fmt.Sprintf("%d rows of %s", want, entity),
		Actual:   fmt.Sprintf("%d rows", got),
	}
}

// assertError checks that some operation on the logical id failed with
// the expected kind.
func assertError(trace []TraceEvent, a Assertion) error {
	var kinds []string
	for _, ev := range trace {
		if ev.LogicalID != a.LogicalID || ev.Error == "" {
			continue
		}
		if ev.Error == a.Kind {
			return nil
		}
		kinds = append(kinds, ev.Error)
	}

	actual := "no error"
	if len(kinds) > 0 {
		actual = "errors: " + strings.Join(kinds, ", ")
	}
	return &AssertionError{
		Type:     AssertError,
		Expected: fmt.Sprintf("%s error for %q", a.Kind, a.LogicalID),
		Actual:   actual,
		Trace:    trace,
	}
}

// assertCurrentContains checks that the logical id is live and that its
// definition and columns contain the expected fields.
func assertCurrentContains(actx *AssertionContext, e ir.EntityType, a Assertion) error {
	recs, err := actx.Store.LookupCurrent(actx.Ctx, e, map[string]any{"node": a.LogicalID})
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return &AssertionError{
			Type:     AssertCurrentContains,
			Expected: fmt.Sprintf("%s %q live", e.Name, a.LogicalID),
			Actual:   "not in current view",
		}
	}
	rec := recs[0]

	def, _ := rec.Definition.(ir.IRObject)
	for _, key := range sortedKeys(a.Definition) {
		if err := matchField(AssertCurrentContains, "definition."+key, a.Definition[key], def[key]); err != nil {
			return err
		}
	}
	for _, key := range sortedKeys(a.Columns) {
		actual, err := ir.FromAny(rec.Columns[key])
		if err != nil {
			return err
		}
		if err := matchField(AssertCurrentContains, "columns."+key, a.Columns[key], actual); err != nil {
			return err
		}
	}
	return nil
}

// matchField compares values by their canonical JSON, so 3 and 3.0 match.
func matchField(typ, field string, expected any, actual ir.IRValue) error {
	want, err := ir.MarshalCanonical(expected)
	if err != nil {
		return fmt.Errorf("%s: expected value: %w", field, err)
	}
	got := []byte("<missing>")
	if actual != nil {
		if got, err = ir.MarshalCanonical(actual); err != nil {
			return fmt.Errorf("%s: actual value: %w", field, err)
		}
	}
	if !bytes.Equal(want, got) {
		return &AssertionError{
			Type:     typ,
			Expected: fmt.Sprintf("%s = %s", field, want),
			Actual:   fmt.Sprintf("%s = %s", field, got),
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
