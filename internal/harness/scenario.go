package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/procflow/internal/ir"
)

// Scenario is a scripted run of one or more process instances.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Definitions lists definition files or directories to deploy first.
	// Relative paths are resolved against the scenario file.
	Definitions []string `yaml:"definitions"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is exactly one of Start, Complete or SetVariables.
type Step struct {
	Start        *StartStep     `yaml:"start,omitempty"`
	Complete     *CompleteStep  `yaml:"complete,omitempty"`
	SetVariables *VariablesStep `yaml:"set_variables,omitempty"`

	// Expect checks the outcome of the step. Without it the step must
	// succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// StartStep starts an instance of Key and names it As.
type StartStep struct {
	Key         string         `yaml:"key"`
	As          string         `yaml:"as"`
	BusinessKey string         `yaml:"business_key,omitempty"`
	Variables   map[string]any `yaml:"variables,omitempty"`
}

// CompleteStep completes the open task of Instance named Task. An empty
// Task selects the only open task of the instance.
type CompleteStep struct {
	Instance  string         `yaml:"instance"`
	Task      string         `yaml:"task,omitempty"`
	Variables map[string]any `yaml:"variables,omitempty"`
}

// VariablesStep writes variables on an active instance.
type VariablesStep struct {
	Instance  string         `yaml:"instance"`
	Variables map[string]any `yaml:"variables"`
}

// ExpectClause describes the expected outcome of a step.
type ExpectClause struct {
	// Error is the expected error code, e.g. ALREADY_COMPLETED.
	Error string `yaml:"error,omitempty"`

	// Activity is the node the instance waits at afterwards.
	Activity string `yaml:"activity,omitempty"`

	// Completed requires the instance to have ended afterwards.
	Completed bool `yaml:"completed,omitempty"`
}

// Assertion checks the final state or the trace.
type Assertion struct {
	Type     string   `yaml:"type"`
	Instance string   `yaml:"instance"`
	Activity string   `yaml:"activity,omitempty"`
	Name     string   `yaml:"name,omitempty"`
	Value    any      `yaml:"value,omitempty"`
	Event    string   `yaml:"event,omitempty"`
	Events   []string `yaml:"events,omitempty"`
	Count    int      `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertActiveAt         = "active_at"
	AssertFinished         = "finished"
	AssertTaskCount        = "task_count"
	AssertVariable         = "variable"
	AssertHistoricVariable = "historic_variable"
	AssertEventOrder       = "event_order"
	AssertEventCount       = "event_count"
)

// LoadScenario reads a scenario file. Unknown fields are rejected and
// definition paths are resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, def := range scenario.Definitions {
		if !filepath.IsAbs(def) {
			scenario.Definitions[i] = filepath.Join(base, def)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Definitions) == 0 {
		return fmt.Errorf("definitions list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for _, def := range s.Definitions {
		if _, err := os.Stat(def); os.IsNotExist(err) {
			return fmt.Errorf("definition file not found: %s", def)
		}
	}

	aliases := map[string]bool{}
	for i, step := range s.Steps {
		if err := validateStep(i, step, aliases); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, aliases); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step, aliases map[string]bool) error {
	kinds := 0
	for _, set := range []bool{step.Start != nil, step.Complete != nil, step.SetVariables != nil} {
		if set {
			kinds++
		}
	}
	if kinds != 1 {
		return fmt.Errorf("steps[%d]: exactly one of start, complete or set_variables is required", i)
	}

	switch {
	case step.Start != nil:
		if step.Start.Key == "" {
			return fmt.Errorf("steps[%d].start: key is required", i)
		}
		if step.Start.As == "" {
			return fmt.Errorf("steps[%d].start: as is required", i)
		}
		if aliases[step.Start.As] {
			return fmt.Errorf("steps[%d].start: alias %q already used", i, step.Start.As)
		}
		aliases[step.Start.As] = true
	case step.Complete != nil:
		if !aliases[step.Complete.Instance] {
			return fmt.Errorf("steps[%d].complete: unknown instance %q", i, step.Complete.Instance)
		}
	case step.SetVariables != nil:
		if !aliases[step.SetVariables.Instance] {
			return fmt.Errorf("steps[%d].set_variables: unknown instance %q", i, step.SetVariables.Instance)
		}
	}

	if e := step.Expect; e != nil && e.Error != "" && (e.Activity != "" || e.Completed) {
		return fmt.Errorf("steps[%d].expect: error cannot be combined with activity or completed", i)
	}
	return nil
}

func validateAssertion(i int, a Assertion, aliases map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", i)
	}
	if !aliases[a.Instance] {
		return fmt.Errorf("assertions[%d]: unknown instance %q", i, a.Instance)
	}

	switch a.Type {
	case AssertActiveAt:
		if a.Activity == "" {
			return fmt.Errorf("assertions[%d]: activity is required for active_at", i)
		}
	case AssertFinished:
	case AssertTaskCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for task_count", i)
		}
	case AssertVariable, AssertHistoricVariable:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for %s", i, a.Type)
		}
		if _, err := ir.FromAny(a.Value); err != nil {
			return fmt.Errorf("assertions[%d]: value: %w", i, err)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", i)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", i)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", i)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
