// Package config loads the settings of tuvix-mount from flags and an
// optional configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"dario.cat/mergo"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/tuvix/tuvix/daemon/graphdriver/overlayutils"
)

const (
	// DefaultFile is read when no configuration file is given. It may be
	// absent.
	DefaultFile = "/etc/tuvix/mount.json"

	defaultProcSource = "/proc"
	defaultDevSource  = "/dev"
	defaultLogLevel   = "info"
	defaultLogFormat  = "text"
)

// flagNames maps configuration keys to the flags setting them, where the two
// differ.
var flagNames = map[string]string{
	"overlay-opts": "overlay-opt",
}

// configKeys are the keys a configuration file may set: the json names of
// the Config fields.
var configKeys = func() map[string]struct{} {
	keys := make(map[string]struct{})
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			keys[name] = struct{}{}
		}
	}
	return keys
}()

// Config holds the settings shared by all commands.
type Config struct {
	ProcSource  string   `json:"proc-source,omitempty" toml:"proc-source"`
	DevSource   string   `json:"dev-source,omitempty" toml:"dev-source"`
	Lock        bool     `json:"lock,omitempty" toml:"lock"`
	MountLabel  string   `json:"mount-label,omitempty" toml:"mount-label"`
	OverlayOpts []string `json:"overlay-opts,omitempty" toml:"overlay-opts"`
	UserXattr   bool     `json:"userxattr,omitempty" toml:"userxattr"`
	LogLevel    string   `json:"log-level,omitempty" toml:"log-level"`
	LogFormat   string   `json:"log-format,omitempty" toml:"log-format"`
}

// New returns a Config with the default settings.
func New() *Config {
	return &Config{
		ProcSource: defaultProcSource,
		DevSource:  defaultDevSource,
		LogLevel:   defaultLogLevel,
		LogFormat:  defaultLogFormat,
	}
}

// InstallFlags binds the configuration to flags.
func InstallFlags(conf *Config, flags *pflag.FlagSet) {
	flags.StringVar(&conf.ProcSource, "proc-source", conf.ProcSource, "Host directory bound on merged/proc")
	flags.StringVar(&conf.DevSource, "dev-source", conf.DevSource, "Host directory bound on merged/dev")
	flags.BoolVar(&conf.Lock, "lock", conf.Lock, "Hold an exclusive lock on the store while mounting")
	flags.StringVar(&conf.MountLabel, "mount-label", conf.MountLabel, "SELinux context of the union mount")
	flags.StringArrayVar(&conf.OverlayOpts, "overlay-opt", conf.OverlayOpts, "Extra overlay mount option (key or key=value)")
	flags.BoolVar(&conf.UserXattr, "userxattr", conf.UserXattr, "Mount the union with the userxattr option")
	flags.StringVarP(&conf.LogLevel, "log-level", "l", conf.LogLevel, `Set the logging level ("debug"|"info"|"warn"|"error"|"fatal")`)
	flags.StringVar(&conf.LogFormat, "log-format", conf.LogFormat, `Set the logging format ("text"|"json")`)
}

// Load merges the configuration file into conf and validates the result.
// Settings given both as a changed flag and in the file are rejected, as are
// unknown keys in the file. Files with a ".toml" extension are read as TOML,
// anything else as JSON.
func Load(conf *Config, flags *pflag.FlagSet, configFile string) (*Config, error) {
	fileConf, err := getConflictFreeConfiguration(configFile, flags)
	if err != nil {
		return nil, err
	}
	if err := mergo.Merge(conf, fileConf, mergo.WithOverride); err != nil {
		return nil, errors.Wrap(err, "failed to merge configuration")
	}
	if err := Validate(conf); err != nil {
		return nil, errors.Wrap(err, "merged configuration validation from file and command line flags failed")
	}
	return conf, nil
}

func getConflictFreeConfiguration(configFile string, flags *pflag.FlagSet) (*Config, error) {
	b, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}
	// Strip a UTF-8 byte order mark left by some editors.
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))

	var (
		raw  map[string]interface{}
		conf Config
	)
	if filepath.Ext(configFile) == ".toml" {
		tree, err := toml.LoadBytes(b)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid configuration file %s", configFile)
		}
		raw = tree.ToMap()
		if err := tree.Unmarshal(&conf); err != nil {
			return nil, errors.Wrapf(err, "invalid configuration file %s", configFile)
		}
	} else {
		if err := json.Unmarshal(b, &raw); err != nil {
			return nil, errors.Wrapf(err, "invalid configuration file %s", configFile)
		}
		if err := json.Unmarshal(b, &conf); err != nil {
			return nil, errors.Wrapf(err, "invalid configuration file %s", configFile)
		}
	}

	if flags != nil {
		if err := findConfigurationConflicts(raw, flags); err != nil {
			return nil, err
		}
	}
	return &conf, nil
}

// findConfigurationConflicts iterates over the provided flags searching for
// duplicated configurations and unknown keys. It returns an error with all the
// conflicts if it finds any.
func findConfigurationConflicts(config map[string]interface{}, flags *pflag.FlagSet) error {
	var unknownKeys []string
	for key := range config {
		if _, ok := configKeys[key]; !ok {
			unknownKeys = append(unknownKeys, key)
		}
	}
	if len(unknownKeys) > 0 {
		sort.Strings(unknownKeys)
		return errors.Errorf("the following directives don't match any configuration option: %s", strings.Join(unknownKeys, ", "))
	}

	var conflicts []string
	for key, value := range config {
		f := flags.Lookup(flagName(key))
		if f != nil && f.Changed {
			conflicts = append(conflicts, fmt.Sprintf("%s: (from flag: %v, from file: %v)", key, f.Value.String(), value))
		}
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return errors.Errorf("the following directives are specified both as a flag and in the configuration file: %s", strings.Join(conflicts, ", "))
	}
	return nil
}

func flagName(key string) string {
	if name, ok := flagNames[key]; ok {
		return name
	}
	return key
}

// Validate checks the values of conf.
func Validate(conf *Config) error {
	if _, err := logrus.ParseLevel(conf.LogLevel); err != nil {
		return errors.Errorf("invalid logging level: %s", conf.LogLevel)
	}
	switch conf.LogFormat {
	case "text", "json":
	default:
		return errors.Errorf("invalid log format: %s", conf.LogFormat)
	}
	for name, src := range map[string]string{"proc-source": conf.ProcSource, "dev-source": conf.DevSource} {
		if !filepath.IsAbs(src) {
			return errors.Errorf("invalid %s %q: must be an absolute path", name, src)
		}
	}
	for _, opt := range conf.OverlayOpts {
		if _, _, err := overlayutils.ParseOption(opt); err != nil {
			return err
		}
	}
	return nil
}
