package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Clark-Hu/kvartali/internal/votekey"
)

func newKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key <storage-key>",
		Short: "Decode a storage key into its category, city, location and user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parts, err := votekey.ParseStorageKey(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "category: %s\n", parts.Category)
			fmt.Fprintf(out, "city:     %s\n", parts.City)
			fmt.Fprintf(out, "location: %s\n", parts.LocationName)
			fmt.Fprintf(out, "user:     %s\n", parts.UserID)
			fmt.Fprintf(out, "vote key: %s\n", votekey.Derive(parts.Category, parts.City, parts.LocationName))
			return nil
		},
	}
}
