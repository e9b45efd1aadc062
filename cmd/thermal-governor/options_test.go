package main

import (
	"testing"

	"github.com/spf13/pflag"
)

func parseOptions(t *testing.T, args ...string) *Options {
	t.Helper()
	opts := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse(%v) error: %v", args, err)
	}
	return opts
}

func TestOptions_Defaults(t *testing.T) {
	opts := parseOptions(t)
	if opts.ConfigPath != DefaultConfigPath || opts.LogLevel != "info" || opts.LogFormat != "console" || opts.DryRun {
		t.Fatalf("defaults=%+v", opts)
	}
	if opts.changed("config") || opts.changed("listen") {
		t.Fatalf("flags reported as changed without being set")
	}
	if err := opts.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
}

func TestOptions_Explicit(t *testing.T) {
	opts := parseOptions(t, "-c", "/tmp/gov.yaml", "--log-level=debug", "--log-format=json", "--listen=", "--dry-run")
	if opts.ConfigPath != "/tmp/gov.yaml" || opts.LogLevel != "debug" || opts.LogFormat != "json" || !opts.DryRun {
		t.Fatalf("opts=%+v", opts)
	}
	if !opts.changed("listen") || opts.Listen != "" {
		t.Fatalf("explicit empty --listen not recorded")
	}
}

func TestOptions_Validate(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "BadLevel",
			args: []string{"--log-level=loud"},
			want: `invalid value "loud" for flag "log-level": want debug, info, warn or error`,
		},
		{
			name: "BadFormat",
			args: []string{"--log-format=xml"},
			want: `invalid value "xml" for flag "log-format": want console or json`,
		},
		{
			name: "EmptyConfig",
			args: []string{"--config="},
			want: `flag "config" must not be empty`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := parseOptions(t, tc.args...).Validate()
			if err == nil || err.Error() != tc.want {
				t.Fatalf("err=%v want %q", err, tc.want)
			}
		})
	}
}
