package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"github.com/tuvix/tuvix/layer"
)

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status STORE-ROOT",
		Short: "Show the mount state of a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := layer.Inspect(cmd.Context(), opts.layerOptions(cmd.OutOrStdout()), args[0])
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), st)
		},
	}
}

func printStatus(out io.Writer, st *layer.State) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Store:\t%s\n", st.Root)
	if st.Mounted {
		fmt.Fprintf(w, "Union:\tmounted (%s)\n", st.FSType)
		if len(st.Layers.LowerDirs) > 0 {
			fmt.Fprintf(w, "Lower dirs:\t%s\n", strings.Join(st.Layers.LowerDirs, ", "))
			fmt.Fprintf(w, "Upper dir:\t%s\n", st.Layers.UpperDir)
			fmt.Fprintf(w, "Work dir:\t%s\n", st.Layers.WorkDir)
		}
	} else {
		fmt.Fprintf(w, "Union:\tnot mounted\n")
	}
	for _, b := range st.Binds {
		state := "detached"
		if b.Attached {
			state = "attached"
		}
		fmt.Fprintf(w, "Bind %s:\t%s (%s)\n", b.Name, state, b.Target)
	}
	fmt.Fprintf(w, "Backing filesystem:\t%s\n", st.BackingFS)
	fmt.Fprintf(w, "Available:\t%s\n", units.HumanSize(float64(st.Available)))
	fmt.Fprintf(w, "User namespace:\t%t\n", st.UserNS)
	return w.Flush()
}
