package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

const DefaultConfigPath = "/etc/thermal-governor/config.yaml"

// Options holds the command-line flags. Flags that mirror a config field
// override it only when set explicitly.
type Options struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	Listen     string
	DryRun     bool

	fs *pflag.FlagSet
}

func NewOptions() *Options {
	return &Options{
		ConfigPath: DefaultConfigPath,
		LogLevel:   "info",
		LogFormat:  "console",
	}
}

func (opts *Options) AddFlags(fs *pflag.FlagSet) {
	if fs == nil {
		fs = pflag.CommandLine
	}
	opts.fs = fs

	fs.StringVarP(&opts.ConfigPath, "config", "c", opts.ConfigPath,
		"Path to the YAML config. A missing file at the default path runs with built-in defaults.")
	fs.StringVar(&opts.LogLevel, "log-level", opts.LogLevel,
		"Log level: debug, info, warn or error.")
	fs.StringVar(&opts.LogFormat, "log-format", opts.LogFormat,
		"Log format: console or json.")
	fs.StringVar(&opts.Listen, "listen", opts.Listen,
		"Status server address, overrides status.listen. An empty value disables the server.")
	fs.BoolVar(&opts.DryRun, "dry-run", opts.DryRun,
		"Log fan speeds instead of driving the fan.")
}

func (opts *Options) Validate() error {
	switch strings.ToLower(opts.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid value %q for flag %q: want debug, info, warn or error", opts.LogLevel, "log-level")
	}
	switch strings.ToLower(opts.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid value %q for flag %q: want console or json", opts.LogFormat, "log-format")
	}
	if strings.TrimSpace(opts.ConfigPath) == "" {
		return fmt.Errorf("flag %q must not be empty", "config")
	}
	return nil
}

func (opts *Options) changed(name string) bool {
	if opts.fs == nil {
		return false
	}
	f := opts.fs.Lookup(name)
	return f != nil && f.Changed
}
