package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/roach88/procflow/internal/ir"
)

// TasksOptions holds flags for the tasks command.
type TasksOptions struct {
	*RootOptions
	Instance string
	Name     string
	Assignee string
}

// TaskList is the output of the tasks command.
type TaskList struct {
	Tasks []ir.Task `json:"tasks"`
}

// String renders the list for text output.
func (l TaskList) String() string {
	if len(l.Tasks) == 0 {
		return "No open tasks."
	}
	var b strings.Builder
	for _, t := range l.Tasks {
		fmt.Fprintf(&b, "%s  %-20s instance=%s", t.ID, t.Name, t.ProcessInstanceID)
		if t.Assignee != "" {
			fmt.Fprintf(&b, " assignee=%s", t.Assignee)
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewTasksCommand creates the tasks command.
func NewTasksCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TasksOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List open user tasks",
		Long: `List open user tasks, oldest first.

Examples:
  procflow tasks
  procflow tasks --instance 0190c2f4-... --name "my task"
  procflow tasks --assignee kermit --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTasks(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Instance, "instance", "", "only tasks of this process instance")
	cmd.Flags().StringVar(&opts.Name, "name", "", "only tasks with this name")
	cmd.Flags().StringVar(&opts.Assignee, "assignee", "", "only tasks assigned to this user")

	return cmd
}

func runTasks(opts *TasksOptions, cmd *cobra.Command) (err error) {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	rt, err := opts.openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, rt.Close())
	}()

	tasks, err := rt.CreateTaskQuery().
		ProcessInstanceID(opts.Instance).
		TaskName(opts.Name).
		TaskAssignee(opts.Assignee).
		List(ctx)
	if err != nil {
		return formatter.Fail("task query failed", err)
	}
	return formatter.Success(TaskList{Tasks: tasks})
}
