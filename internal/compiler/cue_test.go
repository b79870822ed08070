package compiler

import (
	"errors"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/procflow/internal/ir"
)

const oneTaskCUE = `
process: oneTaskProcess: {
	name: "The One Task Process"
	nodes: [
		{id: "theStart", kind: "START"},
		{id: "theTask", kind: "USER_TASK", name: "my task", assignee: "kermit"},
		{id: "theEnd", kind: "END"},
	]
	flows: [
		{id: "flow1", source: "theStart", target: "theTask"},
		{id: "flow2", source: "theTask", target: "theEnd"},
	]
}
`

func TestCompileProcessBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(oneTaskCUE)
	require.NoError(t, v.Err())

	def, err := CompileProcess(v.LookupPath(cue.ParsePath("process.oneTaskProcess")))
	require.NoError(t, err)

	assert.Equal(t, "oneTaskProcess", def.Key)
	assert.Equal(t, "The One Task Process", def.Name)
	require.Len(t, def.Nodes, 3)
	assert.Equal(t, ir.FlowNode{ID: "theTask", Kind: ir.NodeUserTask, Name: "my task", Assignee: "kermit"}, def.Nodes[1])
	require.Len(t, def.Flows, 2)
	assert.Equal(t, ir.SequenceFlow{ID: "flow2", Source: "theTask", Target: "theEnd"}, def.Flows[1])
	assert.Empty(t, Validate(def))
}

func TestCompileProcessQuotedKey(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`process: "order-approval": {
		nodes: [{id: "s", kind: "START"}, {id: "e", kind: "END"}]
		flows: [{id: "f", source: "s", target: "e"}]
	}`)
	require.NoError(t, v.Err())

	def, err := CompileProcess(v.LookupPath(cue.ParsePath(`process."order-approval"`)))
	require.NoError(t, err)
	assert.Equal(t, "order-approval", def.Key)
}

func TestCompileProcessMissingNodes(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`process: empty: { name: "x" }`)
	require.NoError(t, v.Err())

	_, err := CompileProcess(v.LookupPath(cue.ParsePath("process.empty")))
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "nodes", ce.Field)
}

func TestCompileProcessMissingNodeKind(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`process: p: { nodes: [{id: "s"}] }`)
	require.NoError(t, v.Err())

	_, err := CompileProcess(v.LookupPath(cue.ParsePath("process.p")))
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "kind", ce.Field)
}

func TestCompileProcessWrongType(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`process: p: { nodes: [{id: 1, kind: "START"}] }`)
	require.NoError(t, v.Err())

	_, err := CompileProcess(v.LookupPath(cue.ParsePath("process.p")))
	require.Error(t, err)
}

func TestCompileCUE(t *testing.T) {
	src := oneTaskCUE + `
process: straightThrough: {
	nodes: [{id: "s", kind: "START"}, {id: "e", kind: "END"}]
	flows: [{id: "f", source: "s", target: "e"}]
}
`
	defs, err := CompileCUE([]byte(src), "processes.cue")
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "oneTaskProcess", defs[0].Key)
	assert.Equal(t, "straightThrough", defs[1].Key)
}

func TestCompileCUESyntaxError(t *testing.T) {
	_, err := CompileCUE([]byte(`process: {`), "broken.cue")
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Error(), "broken.cue")
}

func TestCompileCUENoProcesses(t *testing.T) {
	_, err := CompileCUE([]byte(`other: 1`), "x.cue")
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "process", ce.Field)
}
