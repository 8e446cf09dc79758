package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/G-Research/hpcdispatch/internal/dispatch/site"
)

func kindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the registered compute site kinds",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, kind := range site.Kinds() {
				fmt.Fprintln(cmd.OutOrStdout(), kind)
			}
		},
	}
}
