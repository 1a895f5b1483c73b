package main

import (
	"io"
	"os"
	"slices"

	"github.com/containerd/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tuvix/tuvix/daemon/config"
	"github.com/tuvix/tuvix/layer"
	"github.com/tuvix/tuvix/mount"
)

const flagConfigFile = "config"

type rootOptions struct {
	configFile  string
	dryRun      bool
	config      *config.Config
	configFlags *pflag.FlagSet
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{
		config:      config.New(),
		configFlags: pflag.NewFlagSet("config", pflag.ContinueOnError),
	}

	cmd := &cobra.Command{
		Use:           "tuvix-mount [OPTIONS] COMMAND",
		Short:         "Compose and decompose the merged root filesystem of a store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd.Flags().Changed(flagConfigFile))
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, flagConfigFile, config.DefaultFile, "Configuration file")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print the mount commands instead of running them")
	config.InstallFlags(opts.config, opts.configFlags)
	flags.AddFlagSet(opts.configFlags)

	cmd.AddCommand(
		newComposeCommand(opts),
		newDecomposeCommand(opts),
		newStatusCommand(opts),
		newHashCommand(),
		newCheckCommand(),
	)
	return cmd
}

// load merges the configuration file into the flag values and configures
// logging. A missing default file is not an error.
func (o *rootOptions) load(explicitFile bool) error {
	if _, err := config.Load(o.config, o.configFlags, o.configFile); err != nil {
		if explicitFile || !os.IsNotExist(err) {
			return errors.Wrap(err, "unable to configure tuvix-mount")
		}
		if err := config.Validate(o.config); err != nil {
			return err
		}
	}
	return configureLogging(o.config)
}

func configureLogging(conf *config.Config) error {
	if err := log.SetLevel(conf.LogLevel); err != nil {
		return err
	}
	format := log.TextFormat
	if conf.LogFormat == string(log.JSONFormat) {
		format = log.JSONFormat
	}
	return log.SetFormat(format)
}

// layerOptions translates the configuration for the layer package. Dry-run
// output goes to out.
func (o *rootOptions) layerOptions(out io.Writer) layer.Options {
	conf := o.config
	opts := layer.Options{
		Binds:          layer.Binds(conf.ProcSource, conf.DevSource),
		OverlayOptions: slices.Clone(conf.OverlayOpts),
		MountLabel:     conf.MountLabel,
	}
	if conf.UserXattr && !slices.Contains(opts.OverlayOptions, "userxattr") {
		opts.OverlayOptions = append(opts.OverlayOptions, "userxattr")
	}
	if o.dryRun {
		opts.Mounter = mount.DryRunMounter{Out: out}
	}
	if conf.Lock {
		opts.Lock = layer.FileLock
	}
	return opts
}
