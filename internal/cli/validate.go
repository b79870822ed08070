package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/procflow/internal/compiler"
)

// DefinitionReport is the validation outcome of one definition.
type DefinitionReport struct {
	Key    string                     `json:"key"`
	Valid  bool                       `json:"valid"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
	Cycles []compiler.Cycle           `json:"cycles,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool               `json:"valid"`
	Definitions []DefinitionReport `json:"definitions"`
}

// String renders the result for text output.
func (r ValidationResult) String() string {
	var b strings.Builder
	for _, d := range r.Definitions {
		if d.Valid {
			fmt.Fprintf(&b, "✓ %s\n", d.Key)
		} else {
			fmt.Fprintf(&b, "✗ %s\n", d.Key)
		}
		for _, e := range d.Errors {
			fmt.Fprintf(&b, "  %s\n", e.Error())
		}
		for _, c := range d.Cycles {
			fmt.Fprintf(&b, "  cycle: %s\n", c.Message)
		}
	}
	if r.Valid {
		fmt.Fprintf(&b, "%d definition(s) valid", len(r.Definitions))
	} else {
		b.WriteString("validation failed")
	}
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Validate process definitions without deploying them",
		Long: `Validate YAML or CUE process definitions.

Checks the node kinds, the flow graph and loops, reporting every problem
found. Nothing is written to the database.

Exit codes:
  0 - All definitions are valid
  1 - One or more definitions are invalid
  2 - Command error (path not found, unreadable file)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	defs, err := compiler.LoadPath(path)
	if err != nil {
		code := compiler.ErrCodeGeneric
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) {
			code = loadErr.Code
		}
		if outErr := formatter.Error(code, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "failed to load definitions", err)
	}
	formatter.VerboseLog("Loaded %d definition(s) from %s", len(defs), path)

	result := ValidationResult{Valid: true, Definitions: make([]DefinitionReport, 0, len(defs))}
	for i := range defs {
		def := &defs[i]
		formatter.VerboseLog("Validating definition: %s", def.Key)

		report := DefinitionReport{
			Key:    def.Key,
			Errors: compiler.Validate(def),
			Cycles: compiler.AnalyzeCycles(def),
		}
		report.Valid = len(report.Errors) == 0
		if !report.Valid {
			result.Valid = false
		}
		result.Definitions = append(result.Definitions, report)
	}

	if !result.Valid {
		if opts.Format == "json" {
			if err := formatter.Error("INVALID_DEFINITION", "validation failed", result); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(formatter.Writer, result)
		}
		return NewExitError(ExitFailure, "validation failed")
	}
	return formatter.Success(result)
}
