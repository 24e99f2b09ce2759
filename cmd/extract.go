// File: cmd/extract.go
package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/promptprobe/api/schemas"
	"github.com/xkilldash9x/promptprobe/internal/observability"
	"github.com/xkilldash9x/promptprobe/internal/tokens"
)

// extractOutput is what the extract command prints.
type extractOutput struct {
	Tokens       map[string]string              `json:"tokens"`
	Sources      map[string]int                 `json:"sources,omitempty"`
	TokenDetails map[string]schemas.TokenDetail `json:"token_details,omitempty"`
}

func newExtractCmd(state *cliState) *cobra.Command {
	var decode bool

	extractCmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Find candidate tokens in a request body read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			extractor := tokens.NewExtractor(state.cfg.Tokens, observability.GetLogger())
			result := extractor.ExtractWithSources(string(body))

			out := extractOutput{Tokens: result.Tokens, Sources: result.Sources}
			if decode {
				out.TokenDetails = tokens.DecodeAll(result.Tokens, time.Now())
			}
			encoded, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode tokens: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}

	extractCmd.Flags().BoolVar(&decode, "decode", false, "decode JWT-shaped tokens without verifying them")
	return extractCmd
}

// readInput reads the named file, or stdin when no file or "-" is given.
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		body, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return body, nil
	}
	body, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return body, nil
}
