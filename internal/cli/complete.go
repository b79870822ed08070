package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// CompleteOptions holds flags for the complete command.
type CompleteOptions struct {
	*RootOptions
	Vars string // JSON object
}

// NewCompleteCommand creates the complete command.
func NewCompleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Complete a user task",
		Long: `Complete an open user task and advance its instance.

Variables given with --vars are written to the instance first.

Exit codes:
  0 - Task completed
  1 - Task unknown or already completed
  2 - Command error

Examples:
  procflow complete 0190c2f4-... --vars '{"approved": true}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComplete(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Vars, "vars", "", "variables as a JSON object")

	return cmd
}

func runComplete(opts *CompleteOptions, taskID string, cmd *cobra.Command) (err error) {
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

	task, err := rt.Tasks().Get(ctx, taskID)
	if err != nil {
		return formatter.Fail("complete failed", err)
	}
	if err := rt.CompleteTask(ctx, taskID, vars); err != nil {
		return formatter.Fail("complete failed", err)
	}

	inst, err := rt.Engine().Instance(ctx, task.ProcessInstanceID)
	if err != nil {
		return formatter.Fail("complete failed", err)
	}
	return formatter.Success(instanceResult(inst))
}
