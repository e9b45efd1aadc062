//go:build linux

package fancontrol

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

var gpioDevDir = "/dev"

// gpioChipCandidates lists character devices in search order: gpiochip0 (most
// kernels), gpiochip4 (some Pi 5 images), then any other chip by name.
func gpioChipCandidates(devDir string) []string {
	preferred := []string{"gpiochip0", "gpiochip4"}
	var rest []string
	entries, _ := os.ReadDir(devDir)
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "gpiochip") || name == preferred[0] || name == preferred[1] {
			continue
		}
		rest = append(rest, name)
	}
	sort.Strings(rest)

	out := make([]string, 0, len(preferred)+len(rest))
	for _, name := range append(preferred, rest...) {
		out = append(out, filepath.Join(devDir, name))
	}
	return out
}

// openGPIO drives a BCM GPIO as a digital output for 2-wire fans switched by
// a transistor. The line starts low so the fan stays off until the first
// Apply.
func openGPIO(pin int) (pwmDriver, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("fancontrol: invalid gpio pin %d", pin)
	}
	lineName := fmt.Sprintf("GPIO%d", pin)

	var lastErr error
	for _, chipPath := range gpioChipCandidates(gpioDevDir) {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("thermal-governor"))
		if err != nil {
			_ = chip.Close()
			lastErr = fmt.Errorf("%s %s: %w", chipPath, lineName, err)
			continue
		}
		return &gpioFan{chip: chip, line: line}, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("fancontrol: gpio line busy: %w", lastErr)
	}
	return nil, fmt.Errorf("fancontrol: gpio line %q not found", lineName)
}

type gpioFan struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	on   bool
	set  bool
}

func (g *gpioFan) SetFrequencyHz(int) error { return nil }

// SetDutyPercent switches the fan fully on for any duty above 0. Repeated
// writes of the same level are skipped.
func (g *gpioFan) SetDutyPercent(p float64) error {
	if g.line == nil {
		return fmt.Errorf("fancontrol: gpio line is closed")
	}
	on := p > 0
	if g.set && g.on == on {
		return nil
	}
	v := 0
	if on {
		v = 1
	}
	if err := g.line.SetValue(v); err != nil {
		return fmt.Errorf("fancontrol: gpio set %d: %w", v, err)
	}
	g.on, g.set = on, true
	return nil
}

// Close releases the line. The kernel may reset a released output, so the
// last level is not guaranteed to persist.
func (g *gpioFan) Close() error {
	if g.line == nil {
		return nil
	}
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
