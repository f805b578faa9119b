package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "equilix",
		Short: "Wellness prompt flows over Gemini and OpenAI-compatible models",
		Long: `equilix runs the wellness prompt flows.

Commands:
  equilix serve               Serve the HTTP API
  equilix flows               List registered flows
  equilix invoke <flow>       Run one flow and print its output`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Path to a YAML config file (default: $EQUILIX_CONFIG or ./config/equilix.yaml)")

	cmd.AddCommand(
		newServeCmd(opts),
		newFlowsCmd(opts),
		newInvokeCmd(opts),
	)
	return cmd
}
