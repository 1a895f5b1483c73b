//go:build !linux

package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check DIR",
		Short: "Check that overlay mounts work below DIR",
		Args:  cobra.ExactArgs(1),
		RunE: func(*cobra.Command, []string) error {
			return errors.New("overlay is only supported on Linux")
		},
	}
}
