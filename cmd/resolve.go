package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fullcount-labs/athlete-cli/internal/identity"
)

var (
	resolveInteractive    bool
	resolveCheckAuthority bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <source-system> <local-id> [raw-name]",
	Short: "Resolve one source sighting to a canonical athlete",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		var intake identity.Intake
		if resolveInteractive {
			intake = identity.NewTerminalIntake(os.Stdin, os.Stdout)
		}
		resolver := identity.NewResolver(st, newAuthority(cfg), intake)

		s := identity.Sighting{SourceSystem: args[0], SourceLocalID: args[1]}
		if len(args) == 3 {
			s.RawName = args[2]
		}

		res, err := resolver.ResolveOrCreate(ctx, s, identity.Options{
			Interactive:    resolveInteractive,
			CheckAuthority: resolveCheckAuthority || cfg.Resolve.CheckAuthority,
		})
		if err != nil {
			return err
		}

		if res.Outcome == identity.OutcomeUnresolved {
			fmt.Println("unresolved")
			return nil
		}
		fmt.Printf("%s\t%s\n", res.AthleteID, res.Outcome)
		return nil
	},
}

func init() {
	resolveCmd.Flags().BoolVarP(&resolveInteractive, "interactive", "i", false, "prompt before creating a new athlete")
	resolveCmd.Flags().BoolVar(&resolveCheckAuthority, "check-authority", false, "consult the app database before minting a new id")
	rootCmd.AddCommand(resolveCmd)
}
