package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/procflow/internal/ir"
)

const oneTaskYAML = `
key: oneTaskProcess
name: The One Task Process
nodes:
  - {id: theStart, kind: START}
  - {id: theTask, kind: USER_TASK, name: my task}
  - {id: theEnd, kind: END}
flows:
  - {id: flow1, source: theStart, target: theTask}
  - {id: flow2, source: theTask, target: theEnd}
`

func TestParseYAML(t *testing.T) {
	def, err := ParseYAML([]byte(oneTaskYAML))
	require.NoError(t, err)

	assert.Equal(t, oneTaskProcess(), def)
	assert.Empty(t, Validate(def))
}

func TestParseYAMLUnknownField(t *testing.T) {
	_, err := ParseYAML([]byte(`
key: p
nodes:
  - {id: s, kind: START, asignee: typo}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asignee")
}

func TestParseYAMLEmpty(t *testing.T) {
	_, err := ParseYAML([]byte(""))
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "yaml", ce.Field)
}

func TestParseYAMLMalformed(t *testing.T) {
	_, err := ParseYAML([]byte("key: [unterminated"))
	require.Error(t, err)
}

func TestParseYAMLKeepsKindVerbatim(t *testing.T) {
	def, err := ParseYAML([]byte(`
key: p
nodes:
  - {id: s, kind: start}
`))
	require.NoError(t, err)
	assert.Equal(t, ir.NodeKind("start"), def.Nodes[0].Kind)
	assert.Contains(t, codes(Validate(def)), ErrUnknownNodeKind)
}
