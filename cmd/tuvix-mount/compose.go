package main

import (
	"github.com/spf13/cobra"
	"github.com/tuvix/tuvix/layer"
)

func newComposeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compose STORE-ROOT CONTENT-HASH [ANCESTOR-LAYER...]",
		Short: "Mount the merged view of a store",
		Long: `Mount the union of the upper layer named CONTENT-HASH, the ancestor layers
and the special layer on STORE-ROOT/merged, then bind the host process
information and devices inside it. Ancestor layers are given highest
priority first. Steps already in place are skipped.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := layer.NewComposer(opts.layerOptions(cmd.OutOrStdout()))
			return c.Compose(cmd.Context(), args[0], args[1], args[2:])
		},
	}
}

func newDecomposeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "decompose STORE-ROOT",
		Short: "Unmount the merged view of a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := layer.NewDecomposer(opts.layerOptions(cmd.OutOrStdout()))
			return d.Decompose(cmd.Context(), args[0])
		},
	}
}
