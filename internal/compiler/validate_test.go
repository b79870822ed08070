package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/procflow/internal/ir"
)

func oneTaskProcess() *ir.ProcessDefinition {
	return &ir.ProcessDefinition{
		Key:  "oneTaskProcess",
		Name: "The One Task Process",
		Nodes: []ir.FlowNode{
			{ID: "theStart", Kind: ir.NodeStart},
			{ID: "theTask", Kind: ir.NodeUserTask, Name: "my task"},
			{ID: "theEnd", Kind: ir.NodeEnd},
		},
		Flows: []ir.SequenceFlow{
			{ID: "flow1", Source: "theStart", Target: "theTask"},
			{ID: "flow2", Source: "theTask", Target: "theEnd"},
		},
	}
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateOneTaskProcess(t *testing.T) {
	errs := Validate(oneTaskProcess())
	assert.Empty(t, errs, "valid definition should have no errors")
}

func TestValidateStartStraightToEnd(t *testing.T) {
	def := &ir.ProcessDefinition{
		Key: "noop",
		Nodes: []ir.FlowNode{
			{ID: "s", Kind: ir.NodeStart},
			{ID: "e", Kind: ir.NodeEnd},
		},
		Flows: []ir.SequenceFlow{{ID: "f", Source: "s", Target: "e"}},
	}
	assert.Empty(t, Validate(def))
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *ir.ProcessDefinition)
		want   string
	}{
		{"empty key", func(d *ir.ProcessDefinition) { d.Key = " " }, ErrDefinitionKeyEmpty},
		{"no nodes", func(d *ir.ProcessDefinition) { d.Nodes = nil; d.Flows = nil }, ErrNoNodes},
		{"duplicate node", func(d *ir.ProcessDefinition) {
			d.Nodes = append(d.Nodes, ir.FlowNode{ID: "theTask", Kind: ir.NodeEnd})
		}, ErrDuplicateNodeID},
		{"empty node id", func(d *ir.ProcessDefinition) {
			d.Nodes = append(d.Nodes, ir.FlowNode{Kind: ir.NodeEnd})
		}, ErrDuplicateNodeID},
		{"unknown kind", func(d *ir.ProcessDefinition) { d.Nodes[1].Kind = "SERVICE_TASK" }, ErrUnknownNodeKind},
		{"no start", func(d *ir.ProcessDefinition) { d.Nodes[0].Kind = ir.NodeUserTask; d.Nodes[0].Name = "x" }, ErrStartCount},
		{"two starts", func(d *ir.ProcessDefinition) {
			d.Nodes = append(d.Nodes, ir.FlowNode{ID: "start2", Kind: ir.NodeStart})
			d.Flows = append(d.Flows, ir.SequenceFlow{ID: "flow3", Source: "start2", Target: "theTask"})
		}, ErrStartCount},
		{"no end", func(d *ir.ProcessDefinition) { d.Nodes[2].Kind = ir.NodeUserTask; d.Nodes[2].Name = "x" }, ErrNoEnd},
		{"unknown target", func(d *ir.ProcessDefinition) { d.Flows[1].Target = "nowhere" }, ErrUnknownFlowNode},
		{"start incoming", func(d *ir.ProcessDefinition) { d.Flows[1].Target = "theStart" }, ErrStartHasIncoming},
		{"end outgoing", func(d *ir.ProcessDefinition) {
			d.Flows = append(d.Flows, ir.SequenceFlow{ID: "flow3", Source: "theEnd", Target: "theTask"})
		}, ErrEndHasOutgoing},
		{"branching", func(d *ir.ProcessDefinition) {
			d.Nodes = append(d.Nodes, ir.FlowNode{ID: "end2", Kind: ir.NodeEnd})
			d.Flows = append(d.Flows, ir.SequenceFlow{ID: "flow3", Source: "theTask", Target: "end2"})
		}, ErrOutgoingFlowCount},
		{"dead end task", func(d *ir.ProcessDefinition) { d.Flows = d.Flows[:1] }, ErrOutgoingFlowCount},
		{"disconnected node", func(d *ir.ProcessDefinition) {
			d.Nodes = append(d.Nodes, ir.FlowNode{ID: "orphan", Kind: ir.NodeEnd})
		}, ErrNodeUnreachable},
		{"task without name", func(d *ir.ProcessDefinition) { d.Nodes[1].Name = "" }, ErrUserTaskNameMissing},
		{"duplicate flow id", func(d *ir.ProcessDefinition) { d.Flows[1].ID = "flow1" }, ErrDuplicateFlowID},
		{"empty flow id", func(d *ir.ProcessDefinition) { d.Flows[1].ID = "" }, ErrDuplicateFlowID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := oneTaskProcess()
			tt.mutate(def)
			errs := Validate(def)
			require.NotEmpty(t, errs)
			assert.Contains(t, codes(errs), tt.want)
		})
	}
}

func TestValidateCycleWithNoExit(t *testing.T) {
	def := &ir.ProcessDefinition{
		Key: "loop",
		Nodes: []ir.FlowNode{
			{ID: "start", Kind: ir.NodeStart},
			{ID: "a", Kind: ir.NodeUserTask, Name: "A"},
			{ID: "b", Kind: ir.NodeUserTask, Name: "B"},
			{ID: "end", Kind: ir.NodeEnd},
		},
		Flows: []ir.SequenceFlow{
			{ID: "f1", Source: "start", Target: "a"},
			{ID: "f2", Source: "a", Target: "b"},
			{ID: "f3", Source: "b", Target: "a"},
		},
	}

	errs := Validate(def)
	require.NotEmpty(t, errs)

	var noExit []ValidationError
	for _, e := range errs {
		if e.Code == ErrNoExit {
			noExit = append(noExit, e)
		}
	}
	require.Len(t, noExit, 2, "one cycle error plus the start node that leads only into it")
	assert.Equal(t, "cycle with no exit: a → b → a", noExit[0].Message)
	assert.Contains(t, noExit[1].Message, `node "start" cannot reach an END node`)
	assert.Contains(t, codes(errs), ErrNodeUnreachable, "the END node is disconnected")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	def := oneTaskProcess()
	def.Key = ""
	def.Nodes[1].Name = ""
	def.Flows[1].ID = "flow1"

	errs := Validate(def)
	assert.ElementsMatch(t,
		[]string{ErrDefinitionKeyEmpty, ErrUserTaskNameMissing, ErrDuplicateFlowID},
		codes(errs))
}

func TestValidationErrorFormat(t *testing.T) {
	e := ValidationError{Field: "key", Message: "key is required", Code: ErrDefinitionKeyEmpty}
	assert.Equal(t, "[E201] key: key is required", e.Error())

	e.Line = 3
	assert.Equal(t, "[E201] line 3: key: key is required", e.Error())

	assert.Equal(t, []string{"[E201] line 3: key: key is required"}, Details([]ValidationError{e}))
}
