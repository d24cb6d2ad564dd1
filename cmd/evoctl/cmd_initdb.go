package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmprotest/openevolve/internal/store"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "create or migrate the persistence store at --db",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("init-db: %w", err)
		}
		defer st.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "initialized store at %s\n", dbPath)
		return nil
	},
}
