package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the mindmap database",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the nodes and edges tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd, os.Stderr)
			if err != nil {
				return err
			}

			st, err := openStore(cmd.Context(), log, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Mindmap tables are ready.")
			return nil
		},
	})

	return cmd
}
