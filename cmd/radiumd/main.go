// Command radiumd runs the agent orchestration daemon: it wires every
// component (workspace, storage, policy, sandbox, tools, models,
// orchestrator, workflow engine, session store, event bus) together and
// exposes them over the RPC surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "radiumd",
		Short: "Agent orchestration daemon",
		Long:  "radiumd hosts the agent orchestration core: sessions, the tool-calling loop, multi-step workflows, and the RPC surface clients attach to.",
	}
	root.AddCommand(buildServeCmd())
	root.AddCommand(buildVersionCmd())
	return root
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "radiumd %s (%s)\n", version, commit)
			return nil
		},
	}
}
