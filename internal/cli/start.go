package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/roach88/procflow/internal/ir"
)

// StartOptions holds flags for the start command.
type StartOptions struct {
	*RootOptions
	BusinessKey string
	Vars        string // JSON object
}

// InstanceResult describes a process instance after a command.
type InstanceResult struct {
	ID           string `json:"id"`
	DefinitionID string `json:"definition_id"`
	BusinessKey  string `json:"business_key,omitempty"`
	CurrentNode  string `json:"current_node,omitempty"`
	Status       string `json:"status"`
}

// String renders the result for text output.
func (r InstanceResult) String() string {
	if r.Status == string(ir.InstanceCompleted) {
		return fmt.Sprintf("instance %s completed", r.ID)
	}
	return fmt.Sprintf("instance %s waiting at %s", r.ID, r.CurrentNode)
}

// NewStartCommand creates the start command.
func NewStartCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StartOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "start <key>",
		Short: "Start a process instance",
		Long: `Start an instance of the latest version of a definition key.

The instance runs until it reaches its first user task or an end node.

Examples:
  procflow start oneTaskProcess
  procflow start order --business-key order-42 --vars '{"amount": 3}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.BusinessKey, "business-key", "", "business key stored with the instance")
	cmd.Flags().StringVar(&opts.Vars, "vars", "", "initial variables as a JSON object")

	return cmd
}

func runStart(opts *StartOptions, key string, cmd *cobra.Command) (err error) {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	vars, err := parseVars(opts.Vars)
	if err != nil {
		return err
	}

	rt, err := opts.openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, rt.Close())
	}()

	inst, err := rt.StartProcessInstanceByKeyAndBusinessKey(ctx, key, opts.BusinessKey, vars)
	if err != nil {
		return formatter.Fail("start failed", err)
	}
	return formatter.Success(instanceResult(inst))
}

func instanceResult(inst ir.ProcessInstance) InstanceResult {
	return InstanceResult{
		ID:           inst.ID,
		DefinitionID: inst.DefinitionID,
		BusinessKey:  inst.BusinessKey,
		CurrentNode:  inst.CurrentNode,
		Status:       string(inst.Status),
	}
}

// parseVars decodes a --vars flag. An empty flag means no variables.
func parseVars(raw string) (ir.Object, error) {
	if raw == "" {
		return ir.Object{}, nil
	}
	v, err := ir.UnmarshalValue([]byte(raw))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --vars", err)
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, NewExitError(ExitCommandError, "invalid --vars: expected a JSON object")
	}
	return obj, nil
}
