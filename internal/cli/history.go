package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/roach88/procflow/internal/ir"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Variable string
}

// HistoryResult is the audit trail of one instance.
type HistoryResult struct {
	Instance  ir.HistoricProcessInstance    `json:"instance"`
	Events    []ir.HistoryEvent             `json:"events"`
	Variables []ir.HistoricVariableInstance `json:"variables,omitempty"`
}

// String renders the result for text output.
func (r HistoryResult) String() string {
	var b strings.Builder
	state := "unfinished"
	if r.Instance.Finished() {
		state = "finished at " + r.Instance.EndNode
	}
	fmt.Fprintf(&b, "instance %s (%s) %s\n", r.Instance.ProcessInstanceID, r.Instance.DefinitionID, state)
	for _, e := range r.Events {
		fmt.Fprintf(&b, "  [%d] %-18s %s", e.Seq, e.Type, e.NodeID)
		if e.Detail != "" {
			fmt.Fprintf(&b, " %s", e.Detail)
		}
		b.WriteString("\n")
	}
	for _, v := range r.Variables {
		encoded, err := ir.MarshalCanonical(v.Value)
		if err != nil {
			encoded = []byte("?")
		}
		fmt.Fprintf(&b, "  [%d] %s=%s\n", v.Seq, v.Name, encoded)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <instance-id>",
		Short: "Show the audit trail of a process instance",
		Long: `Show the historic record and every history event of an instance.

History outlives the instance, so finished instances can be inspected too.
With --variable, every recorded write of that variable is listed as well.

Examples:
  procflow history 0190c2f4-...
  procflow history 0190c2f4-... --variable form_outcome --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Variable, "variable", "", "also list the writes of this variable")

	return cmd
}

func runHistory(opts *HistoryOptions, instanceID string, cmd *cobra.Command) (err error) {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	rt, err := opts.openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, rt.Close())
	}()

	inst, err := rt.History().QueryInstance(ctx, instanceID)
	if err != nil {
		return formatter.Fail("history query failed", err)
	}
	events, err := rt.History().Events(ctx, instanceID)
	if err != nil {
		return formatter.Fail("history query failed", err)
	}

	result := HistoryResult{Instance: inst, Events: events}
	if opts.Variable != "" {
		result.Variables, err = rt.History().VariableHistory(ctx, instanceID, opts.Variable)
		if err != nil {
			return formatter.Fail("history query failed", err)
		}
	}
	return formatter.Success(result)
}
