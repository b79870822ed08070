package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/procflow/internal/ir"
)

// CompileProcess parses a CUE value into a ProcessDefinition draft.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the process struct itself; its label is the key:
//
//	process: oneTaskProcess: {
//		name: "The One Task Process"
//		nodes: [
//			{id: "theStart", kind: "START"},
//			{id: "theTask", kind: "USER_TASK", name: "my task"},
//			{id: "theEnd", kind: "END"},
//		]
//		flows: [
//			{id: "flow1", source: "theStart", target: "theTask"},
//			{id: "flow2", source: "theTask", target: "theEnd"},
//		]
//	}
//
// The draft has no ID, version or hash; those are assigned at deploy time.
func CompileProcess(v cue.Value) (*ir.ProcessDefinition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &ir.ProcessDefinition{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		def.Key = labels[len(labels)-1].Unquoted()
	}

	var err error
	if def.Name, err = optionalString(v, "name"); err != nil {
		return nil, err
	}

	nodesVal := v.LookupPath(cue.ParsePath("nodes"))
	if !nodesVal.Exists() {
		return nil, &CompileError{
			Field:   "nodes",
			Message: "nodes is required",
			Pos:     v.Pos(),
		}
	}
	def.Nodes, err = parseNodes(nodesVal)
	if err != nil {
		return nil, err
	}

	def.Flows, err = parseFlows(v.LookupPath(cue.ParsePath("flows")))
	if err != nil {
		return nil, err
	}

	return def, nil
}

// CompileCUE compiles CUE source and returns every definition under the
// top-level "process" struct, in source order.
func CompileCUE(src []byte, filename string) ([]ir.ProcessDefinition, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	processes := value.LookupPath(cue.ParsePath("process"))
	if !processes.Exists() {
		return nil, &CompileError{
			Field:   "process",
			Message: "no process definitions found",
			Pos:     value.Pos(),
		}
	}

	iter, err := processes.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var defs []ir.ProcessDefinition
	for iter.Next() {
		def, err := CompileProcess(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("process.%s: %w", iter.Selector().Unquoted(), err)
		}
		defs = append(defs, *def)
	}
	return defs, nil
}

func parseNodes(v cue.Value) ([]ir.FlowNode, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var nodes []ir.FlowNode
	for iter.Next() {
		elem := iter.Value()
		var node ir.FlowNode

		if node.ID, err = requiredString(elem, "id"); err != nil {
			return nil, err
		}
		kind, err := requiredString(elem, "kind")
		if err != nil {
			return nil, err
		}
		node.Kind = ir.NodeKind(kind)
		if node.Name, err = optionalString(elem, "name"); err != nil {
			return nil, err
		}
		if node.Assignee, err = optionalString(elem, "assignee"); err != nil {
			return nil, err
		}
		if node.Documentation, err = optionalString(elem, "documentation"); err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func parseFlows(v cue.Value) ([]ir.SequenceFlow, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var flows []ir.SequenceFlow
	for iter.Next() {
		elem := iter.Value()
		var flow ir.SequenceFlow

		if flow.ID, err = requiredString(elem, "id"); err != nil {
			return nil, err
		}
		if flow.Source, err = requiredString(elem, "source"); err != nil {
			return nil, err
		}
		if flow.Target, err = requiredString(elem, "target"); err != nil {
			return nil, err
		}
		flows = append(flows, flow)
	}
	return flows, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// CompileError is a structural error in a definition source, with the
// source position when one is known.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Report the first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
