package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/roach88/procflow/internal/ir"
)

// yamlDefinition is the YAML authoring form of a process definition.
type yamlDefinition struct {
	Key   string            `yaml:"key"`
	Name  string            `yaml:"name"`
	Nodes []ir.FlowNode     `yaml:"nodes"`
	Flows []ir.SequenceFlow `yaml:"flows"`
}

// ParseYAML parses one YAML process definition draft.
//
// Unknown fields are rejected so typos such as "asignee" surface at deploy
// time instead of being silently dropped.
//
//	key: oneTaskProcess
//	name: The One Task Process
//	nodes:
//	  - {id: theStart, kind: START}
//	  - {id: theTask, kind: USER_TASK, name: my task}
//	  - {id: theEnd, kind: END}
//	flows:
//	  - {id: flow1, source: theStart, target: theTask}
//	  - {id: flow2, source: theTask, target: theEnd}
func ParseYAML(data []byte) (*ir.ProcessDefinition, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var doc yamlDefinition
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &CompileError{Field: "yaml", Message: "empty definition"}
		}
		return nil, fmt.Errorf("parse definition YAML: %w", err)
	}

	return &ir.ProcessDefinition{
		Key:   doc.Key,
		Name:  doc.Name,
		Nodes: doc.Nodes,
		Flows: doc.Flows,
	}, nil
}
