package harness

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/roach88/procflow/internal/ir"
	"github.com/roach88/procflow/internal/runtime"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s\n", event.Seq, event.Instance, event.Type, event.Node)
		}
	}
	return buf.String()
}

// AssertionContext gives assertions access to the runtime that ran the
// scenario.
type AssertionContext struct {
	Ctx       context.Context
	Runtime   *runtime.Runtime
	Instances map[string]string
}

// EvaluateAssertions checks every assertion and returns one message per
// failure. Trace assertions need only the result; state assertions need actx.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertEventOrder:
			err = assertEventOrder(result.Trace, a)
		case AssertEventCount:
			err = assertEventCount(result.Trace, a)
		default:
			if actx == nil || actx.Runtime == nil {
				err = fmt.Errorf("%s requires a runtime", a.Type)
				break
			}
			err = assertState(actx, a)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion[%d]: %v", i, err))
		}
	}
	return errs
}

// instanceTrace returns the events of one instance alias.
func instanceTrace(trace []TraceEvent, alias string) []TraceEvent {
	out := []TraceEvent{}
	for _, e := range trace {
		if e.Instance == alias {
			out = append(out, e)
		}
	}
	return out
}

// assertEventOrder checks that the event types occur in order. Other events
// may appear in between.
func assertEventOrder(trace []TraceEvent, a Assertion) error {
	events := instanceTrace(trace, a.Instance)
	next := 0
	for _, e := range events {
		if next < len(a.Events) && e.Type == a.Events[next] {
			next++
		}
	}
	if next == len(a.Events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventOrder,
		Expected: fmt.Sprintf("events in order: %v", a.Events),
		Actual:   fmt.Sprintf("%s not found after %v", a.Events[next], a.Events[:next]),
		Trace:    events,
	}
}

func assertEventCount(trace []TraceEvent, a Assertion) error {
	events := instanceTrace(trace, a.Instance)
	count := 0
	for _, e := range events {
		if e.Type == a.Event {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventCount,
		Expected: fmt.Sprintf("%s exactly %d time(s)", a.Event, a.Count),
		Actual:   fmt.Sprintf("found %d time(s)", count),
		Trace:    events,
	}
}

func assertState(actx *AssertionContext, a Assertion) error {
	ctx := actx.Ctx
	rt := actx.Runtime
	id, ok := actx.Instances[a.Instance]
	if !ok {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("instance %q", a.Instance), Actual: "never started"}
	}

	switch a.Type {
	case AssertActiveAt:
		exists, err := rt.CreateExecutionQuery().ProcessInstanceID(id).ActivityID(a.Activity).Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return &AssertionError{Type: a.Type, Expected: "waiting at " + a.Activity, Actual: "not waiting there"}
		}

	case AssertFinished:
		if _, err := rt.CreateHistoricProcessInstanceQuery().ProcessInstanceID(id).Finished().SingleResult(ctx); err != nil {
			return &AssertionError{Type: a.Type, Expected: "finished instance", Actual: err.Error()}
		}

	case AssertTaskCount:
		n, err := rt.CreateTaskQuery().ProcessInstanceID(id).TaskName(a.Name).Count(ctx)
		if err != nil {
			return err
		}
		if n != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d open task(s)", a.Count),
				Actual:   fmt.Sprintf("%d open task(s)", n),
			}
		}

	case AssertVariable:
		vars, err := rt.Variables(ctx, id)
		if err != nil {
			return err
		}
		actual, ok := vars[a.Name]
		if !ok {
			return &AssertionError{Type: a.Type, Expected: "variable " + a.Name, Actual: "not set"}
		}
		return compareValue(a, actual)

	case AssertHistoricVariable:
		h, err := rt.CreateHistoricVariableInstanceQuery().ProcessInstanceID(id).VariableName(a.Name).SingleResult(ctx)
		if err != nil {
			return &AssertionError{Type: a.Type, Expected: "historic variable " + a.Name, Actual: err.Error()}
		}
		return compareValue(a, h.Value)

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// compareValue compares canonical encodings so 3 and int64(3) match.
func compareValue(a Assertion, actual ir.Value) error {
	expected, err := ir.FromAny(a.Value)
	if err != nil {
		return err
	}
	want, err := ir.MarshalCanonical(expected)
	if err != nil {
		return err
	}
	got, err := ir.MarshalCanonical(actual)
	if err != nil {
		return err
	}
	if !bytes.Equal(want, got) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s = %s", a.Name, want),
			Actual:   fmt.Sprintf("%s = %s", a.Name, got),
		}
	}
	return nil
}
