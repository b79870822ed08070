package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/procflow/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrDefinitionKeyEmpty  = "E201" // key is required
	ErrNoNodes             = "E202" // at least one node required
	ErrDuplicateNodeID     = "E203" // duplicate or empty node id
	ErrUnknownNodeKind     = "E204" // kind is not START, USER_TASK or END
	ErrStartCount          = "E205" // exactly one START required
	ErrNoEnd               = "E206" // at least one END required
	ErrUnknownFlowNode     = "E207" // flow source/target not a node
	ErrStartHasIncoming    = "E208" // START cannot be a flow target
	ErrEndHasOutgoing      = "E209" // END cannot be a flow source
	ErrOutgoingFlowCount   = "E210" // non-END node needs exactly one outgoing flow
	ErrNodeUnreachable     = "E211" // node not reachable from START
	ErrNoExit              = "E212" // node cannot reach any END
	ErrUserTaskNameMissing = "E213" // USER_TASK needs a name
	ErrDuplicateFlowID     = "E214" // duplicate or empty flow id
)

// ValidationError represents a definition validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a process definition draft.
// Returns all errors found (does not fail-fast).
func Validate(def *ir.ProcessDefinition) []ValidationError {
	var errs []ValidationError

	// E201: key is required
	if strings.TrimSpace(def.Key) == "" {
		errs = append(errs, ValidationError{
			Field:   "key",
			Message: "key is required and must be non-empty",
			Code:    ErrDefinitionKeyEmpty,
		})
	}

	// E202: at least one node required
	if len(def.Nodes) == 0 {
		errs = append(errs, ValidationError{
			Field:   "nodes",
			Message: "at least one node is required",
			Code:    ErrNoNodes,
		})
		return errs
	}

	nodes := make(map[string]ir.FlowNode, len(def.Nodes))
	var starts, ends []string

	for i, n := range def.Nodes {
		field := fmt.Sprintf("nodes[%d]", i)

		// E203: node ids must be present and unique
		if strings.TrimSpace(n.ID) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".id",
				Message: "node id is required",
				Code:    ErrDuplicateNodeID,
			})
			continue
		}
		if _, dup := nodes[n.ID]; dup {
			errs = append(errs, ValidationError{
				Field:   field + ".id",
				Message: fmt.Sprintf("duplicate node id: %q", n.ID),
				Code:    ErrDuplicateNodeID,
			})
			continue
		}
		nodes[n.ID] = n

		// E204: kind must be known
		if !ir.ValidNodeKinds[n.Kind] {
			errs = append(errs, ValidationError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("unknown node kind %q for node %q, must be START, USER_TASK or END", n.Kind, n.ID),
				Code:    ErrUnknownNodeKind,
			})
		}

		switch n.Kind {
		case ir.NodeStart:
			starts = append(starts, n.ID)
		case ir.NodeEnd:
			ends = append(ends, n.ID)
		case ir.NodeUserTask:
			// E213: the node name becomes the task name
			if strings.TrimSpace(n.Name) == "" {
				errs = append(errs, ValidationError{
					Field:   field + ".name",
					Message: fmt.Sprintf("user task %q requires a name", n.ID),
					Code:    ErrUserTaskNameMissing,
				})
			}
		}
	}

	// E205: exactly one START
	if len(starts) != 1 {
		errs = append(errs, ValidationError{
			Field:   "nodes",
			Message: fmt.Sprintf("exactly one START node is required, found %d", len(starts)),
			Code:    ErrStartCount,
		})
	}

	// E206: at least one END
	if len(ends) == 0 {
		errs = append(errs, ValidationError{
			Field:   "nodes",
			Message: "at least one END node is required",
			Code:    ErrNoEnd,
		})
	}

	flowIDs := make(map[string]bool, len(def.Flows))
	outgoing := make(map[string]int, len(nodes))
	graphValid := true

	for i, f := range def.Flows {
		field := fmt.Sprintf("flows[%d]", i)

		// E214: flow ids must be present and unique
		switch {
		case strings.TrimSpace(f.ID) == "":
			errs = append(errs, ValidationError{
				Field:   field + ".id",
				Message: "flow id is required",
				Code:    ErrDuplicateFlowID,
			})
		case flowIDs[f.ID]:
			errs = append(errs, ValidationError{
				Field:   field + ".id",
				Message: fmt.Sprintf("duplicate flow id: %q", f.ID),
				Code:    ErrDuplicateFlowID,
			})
		}
		flowIDs[f.ID] = true

		// E207: both ends must be declared nodes
		source, okSource := nodes[f.Source]
		target, okTarget := nodes[f.Target]
		if !okSource {
			errs = append(errs, ValidationError{
				Field:   field + ".source",
				Message: fmt.Sprintf("flow %q references unknown node %q", f.ID, f.Source),
				Code:    ErrUnknownFlowNode,
			})
		}
		if !okTarget {
			errs = append(errs, ValidationError{
				Field:   field + ".target",
				Message: fmt.Sprintf("flow %q references unknown node %q", f.ID, f.Target),
				Code:    ErrUnknownFlowNode,
			})
		}
		if !okSource || !okTarget {
			graphValid = false
			continue
		}
		outgoing[f.Source]++

		// E208: START has no incoming flows
		if target.Kind == ir.NodeStart {
			errs = append(errs, ValidationError{
				Field:   field + ".target",
				Message: fmt.Sprintf("flow %q targets START node %q", f.ID, f.Target),
				Code:    ErrStartHasIncoming,
			})
		}

		// E209: END has no outgoing flows
		if source.Kind == ir.NodeEnd {
			errs = append(errs, ValidationError{
				Field:   field + ".source",
				Message: fmt.Sprintf("flow %q leaves END node %q", f.ID, f.Source),
				Code:    ErrEndHasOutgoing,
			})
		}
	}

	// E210: every non-END node has exactly one outgoing flow
	for _, n := range def.Nodes {
		if _, ok := nodes[n.ID]; !ok || n.Kind == ir.NodeEnd {
			continue
		}
		if count := outgoing[n.ID]; count != 1 {
			errs = append(errs, ValidationError{
				Field:   "flows",
				Message: fmt.Sprintf("node %q must have exactly one outgoing flow, found %d", n.ID, count),
				Code:    ErrOutgoingFlowCount,
			})
		}
	}

	// E211, E212: graph shape; only meaningful once flows resolve
	if graphValid && len(starts) == 1 && len(ends) > 0 {
		errs = append(errs, validateGraph(def, starts[0])...)
	}

	return errs
}

// validateGraph checks that every node is reachable from start and can
// reach an END node.
func validateGraph(def *ir.ProcessDefinition, start string) []ValidationError {
	var errs []ValidationError

	graph := buildFlowGraph(def)
	reachable := graph.reachableFrom(start)

	for _, n := range def.Nodes {
		if !reachable[n.ID] {
			errs = append(errs, ValidationError{
				Field:   "nodes",
				Message: fmt.Sprintf("node %q is disconnected: not reachable from START node %q", n.ID, start),
				Code:    ErrNodeUnreachable,
			})
		}
	}

	inCycle := make(map[string]bool)
	for _, c := range AnalyzeCycles(def) {
		if c.HasExit {
			continue
		}
		for _, node := range c.Path {
			inCycle[node] = true
		}
		errs = append(errs, ValidationError{
			Field:   "flows",
			Message: c.Message,
			Code:    ErrNoExit,
		})
	}

	canEnd := graph.reachesEnd(def)
	for _, n := range def.Nodes {
		if canEnd[n.ID] || inCycle[n.ID] {
			continue
		}
		errs = append(errs, ValidationError{
			Field:   "nodes",
			Message: fmt.Sprintf("node %q cannot reach an END node", n.ID),
			Code:    ErrNoExit,
		})
	}

	return errs
}

// Details flattens validation errors into the message list carried by an
// InvalidDefinition error.
func Details(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}
