package sensors

import (
	"context"
	"fmt"

	"thermal-governor/internal/i2c"
	"thermal-governor/internal/sensors/bmp280"
)

type tempDevice interface {
	ReadTempC() (float64, error)
}

var openBMP280Fn = func(busPath string, addr uint16) (tempDevice, func() error, error) {
	bus, err := i2c.Open(busPath)
	if err != nil {
		return nil, nil, err
	}
	dev, err := bmp280.New(bus.Dev(addr))
	if err != nil {
		_ = bus.Close()
		return nil, nil, err
	}
	return dev, bus.Close, nil
}

// bmp280Reader opens the chip on first use and reopens it after any bus
// error, so a loose enclosure sensor comes back without a restart.
type bmp280Reader struct {
	bus  string
	addr uint16

	dev     tempDevice
	closeFn func() error
}

func (r *bmp280Reader) read(ctx context.Context) (float64, error) {
	if r.dev == nil {
		dev, closeFn, err := openBMP280Fn(r.bus, r.addr)
		if err != nil {
			return 0, fmt.Errorf("open bmp280 on %s addr 0x%02X: %w", r.bus, r.addr, err)
		}
		r.dev, r.closeFn = dev, closeFn
	}
	v, err := r.dev.ReadTempC()
	if err != nil {
		_ = r.close()
		return 0, err
	}
	return v, nil
}

func (r *bmp280Reader) close() error {
	if r.closeFn == nil {
		return nil
	}
	err := r.closeFn()
	r.dev, r.closeFn = nil, nil
	return err
}
