// Command thermal-governor keeps a fan at the slowest speed that holds the
// hottest configured sensor below its thresholds.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/oklog/run"
	"github.com/spf13/pflag"

	"thermal-governor/internal/config"
	"thermal-governor/internal/logging"
	"thermal-governor/internal/web"
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stderr))
}

// execute is main without the os.Exit, returning the process exit code.
func execute(ctx context.Context, args []string, stderr io.Writer) int {
	opts := NewOptions()
	fs := pflag.NewFlagSet("thermal-governor", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	opts.AddFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if err := opts.Validate(); err != nil {
		fmt.Fprintf(stderr, "thermal-governor: %v\n", err)
		return 2
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "thermal-governor: config load failed: %v\n", err)
		return 1
	}
	if opts.changed("listen") {
		cfg.Status.Listen = opts.Listen
	}
	if opts.DryRun {
		cfg.Fan.Backend = config.BackendLog
	}

	logs := web.NewLogBuffer(cfg.Status.LogLines)
	log, flush, err := logging.New(logging.Options{
		Level:  opts.LogLevel,
		Format: opts.LogFormat,
		Stderr: stderr,
		Tee:    logs,
	})
	if err != nil {
		fmt.Fprintf(stderr, "thermal-governor: %v\n", err)
		return 2
	}
	defer flush()

	rt, err := newRuntime(cfg, log, logs)
	if err != nil {
		log.Error(err, "startup failed")
		return 1
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Error(err, "shutdown cleanup failed")
		}
	}()

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	rt.addActors(ctx, &g)

	err = g.Run()
	var sig run.SignalError
	switch {
	case err == nil, errors.As(err, &sig), errors.Is(err, context.Canceled):
		log.Info("thermal-governor stopped", "reason", stopReason(err))
		return 0
	default:
		log.Error(err, "thermal-governor stopped")
		return 1
	}
}

// loadConfig reads opts.ConfigPath. Only the default path may be absent.
func loadConfig(opts *Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil && errors.Is(err, os.ErrNotExist) && !opts.changed("config") {
		return config.Parse(nil)
	}
	return cfg, err
}

func stopReason(err error) string {
	if err == nil {
		return "done"
	}
	return err.Error()
}
