//go:build linux

package sensors

import (
	"context"
	"fmt"

	"github.com/alittlebrighter/embd"
	_ "github.com/alittlebrighter/embd/host/rpi"
	"github.com/alittlebrighter/embd/sensor/mcp9808"

	"thermal-governor/internal/i2c"
)

// mcp9808Reader reads an MCP9808 at its fixed address 0x18 through embd.
type mcp9808Reader struct {
	bus string

	sensor *mcp9808.MCP9808
}

func (r *mcp9808Reader) open() error {
	n, err := i2c.BusNumber(r.bus)
	if err != nil {
		return err
	}
	s, err := mcp9808.New(embd.NewI2CBus(byte(n)))
	if err != nil {
		return fmt.Errorf("open mcp9808 on %s: %w", r.bus, err)
	}
	if err := s.SetShutdownMode(false); err != nil {
		return fmt.Errorf("mcp9808 wake: %w", err)
	}
	if err := s.SetTempResolution(mcp9808.SixteenthC); err != nil {
		return fmt.Errorf("mcp9808 resolution: %w", err)
	}
	r.sensor = s
	return nil
}

func (r *mcp9808Reader) read(ctx context.Context) (float64, error) {
	if r.sensor == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}
	t, err := r.sensor.AmbientTemp()
	if err != nil {
		r.sensor = nil
		return 0, fmt.Errorf("mcp9808 read: %w", err)
	}
	return t.CelsiusDeg, nil
}

func (r *mcp9808Reader) close() error {
	if r.sensor == nil {
		return nil
	}
	err := r.sensor.SetShutdownMode(true)
	r.sensor = nil
	if cerr := embd.CloseI2C(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
