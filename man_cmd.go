package main

import (
	"fmt"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

var manCmd = &cobra.Command{
	Use:                   "man",
	Short:                 "Generates manpages",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Hidden:                true,
	Args:                  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		manPage, err := mcobra.NewManPage(1, rootCmd)
		if err != nil {
			return err
		}

		manPage = manPage.WithSection("Environment", "Every configuration key can be set with a BRIDGE_ variable, "+
			"for example BRIDGE_SESSION_TTL or BRIDGE_DISPATCH_WORKERS.")
		fmt.Println(manPage.Build(roff.NewDocument()))
		return nil
	},
}
