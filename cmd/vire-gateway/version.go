package main

import (
	"fmt"

	"github.com/bobmcallan/vire-gateway/internal/config"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vire-gateway version %s\n", config.GetFullVersion())
		},
	}
}
