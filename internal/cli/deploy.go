package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// DeployedDefinition summarizes one stored definition version.
type DeployedDefinition struct {
	ID      string `json:"id"`
	Key     string `json:"key"`
	Version int    `json:"version"`
	Hash    string `json:"hash"`
}

// DeployResult lists the definitions written by one deploy.
type DeployResult struct {
	Definitions []DeployedDefinition `json:"definitions"`
}

// String renders the result for text output.
func (r DeployResult) String() string {
	var b strings.Builder
	for _, d := range r.Definitions {
		fmt.Fprintf(&b, "deployed %s version %d (%s)\n", d.Key, d.Version, d.ID)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy <path>",
		Short: "Deploy process definitions",
		Long: `Deploy every YAML or CUE definition found at path.

Each deploy of a key stores a new version; instances started afterwards
use the latest version.

Examples:
  procflow deploy ./processes
  procflow deploy order.yaml --db orders.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runDeploy(opts *RootOptions, path string, cmd *cobra.Command) (err error) {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	rt, err := opts.openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, rt.Close())
	}()

	deployed, err := rt.DeployFile(ctx, path)
	if err != nil {
		return formatter.Fail("deploy failed", err)
	}

	result := DeployResult{Definitions: make([]DeployedDefinition, 0, len(deployed))}
	for _, def := range deployed {
		result.Definitions = append(result.Definitions, DeployedDefinition{
			ID:      def.ID,
			Key:     def.Key,
			Version: def.Version,
			Hash:    def.Hash,
		})
	}
	return formatter.Success(result)
}
