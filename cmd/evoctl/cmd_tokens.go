package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmprotest/openevolve/internal/tokencount"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens [file]",
	Short: "print the precise cl100k_base token count for a file (or stdin)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("tokens: read input: %w", err)
		}

		n, err := tokencount.Count(string(data))
		if err != nil {
			return fmt.Errorf("tokens: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokensCmd)
}
