package sensors

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

// waitDelay bounds how long Output waits for stray children holding stdout
// after the context kills the command.
const waitDelay = time.Second

var firstNumber = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// commandReader runs an external tool and takes the first number it prints,
// so "temp=48.3'C" from vcgencmd and "temperature : 38 C" from nvme-cli both
// work unchanged.
type commandReader struct {
	name  string
	args  []string
	scale float64
}

func (r *commandReader) read(ctx context.Context) (float64, error) {
	cmd := exec.CommandContext(ctx, r.name, r.args...)
	cmd.WaitDelay = waitDelay
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("run %s: %w", r.name, err)
	}
	m := firstNumber.Find(out)
	if m == nil {
		return 0, fmt.Errorf("no number in output of %s", r.name)
	}
	v, err := strconv.ParseFloat(string(m), 64)
	if err != nil {
		return 0, fmt.Errorf("parse output of %s: %w", r.name, err)
	}
	return v * r.scale, nil
}

func (r *commandReader) close() error { return nil }
