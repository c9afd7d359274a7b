package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fullcount-labs/athlete-cli/internal/identity"
	"github.com/fullcount-labs/athlete-cli/internal/model"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Recompute per-domain session counts from the fact tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		counts, err := identity.Reconcile(ctx, st)
		if err != nil {
			return err
		}

		for _, domain := range model.Domains {
			fmt.Printf("%s\t%d athletes with data\n", domain, counts[domain])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}
