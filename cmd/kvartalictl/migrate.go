package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Clark-Hu/kvartali/db/migrations"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert the ratings schema",
	}
	cmd.AddCommand(newMigrateStepCmd("up", "Create the ratings table and change trigger", migrations.Up))
	cmd.AddCommand(newMigrateStepCmd("down", "Drop the ratings table and change trigger", migrations.Down))
	return cmd
}

func newMigrateStepCmd(name, short string, scripts func() ([]string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stmts, err := scripts()
			if err != nil {
				return fmt.Errorf("read migrations: %w", err)
			}
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			for i, sql := range stmts {
				if _, err := st.Pool().Exec(cmd.Context(), sql); err != nil {
					return fmt.Errorf("migration %d (%s): %w", i+1, name, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d %s migration(s)\n", len(stmts), name)
			return nil
		},
	}
}
