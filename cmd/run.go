// File: cmd/run.go
package cmd

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/promptprobe/internal/observability"
	"github.com/xkilldash9x/promptprobe/internal/probe"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newRunCmd(state *cliState) *cobra.Command {
	var message string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and print the result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := newPipelineRunner(state.cfg, observability.GetLogger(), nil)
			result := runner.Run(cmd.Context(), probe.RunOptions{Message: message})

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if result.Failed() {
				return fmt.Errorf("run failed: %s", result.Error)
			}
			return nil
		},
	}

	runCmd.Flags().StringVarP(&message, "message", "m", "", "prompt to send instead of a random one")
	runCmd.Flags().String("url", "", "target page (overrides target.url)")
	runCmd.Flags().Bool("headless", true, "run the browser headless (overrides browser.headless)")
	_ = state.v.BindPFlag("target.url", runCmd.Flags().Lookup("url"))
	_ = state.v.BindPFlag("browser.headless", runCmd.Flags().Lookup("headless"))
	return runCmd
}
