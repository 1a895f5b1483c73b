package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tuvix/tuvix/daemon/graphdriver/overlayutils"
)

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check DIR",
		Short: "Check that overlay mounts work below DIR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := overlayutils.SupportsOverlay(cmd.Context(), args[0], true); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "overlay is supported")
			return err
		},
	}
}
