package fancontrol

import (
	"context"
	"fmt"

	"thermal-governor/internal/i2c"
)

// Microchip EMC2301 single-channel fan controller, as fitted to the Waveshare
// PoE/fan hats.
const (
	emcRegFanSetting = 0x30
	emcRegFanConfig1 = 0x32
	emcRegProductID  = 0xFD
	emcRegManufID    = 0xFE

	emcProductID = 0x37
	emcManufID   = 0x5D

	// EN_ALGO selects the RPM closed loop. Cleared, FAN_SETTING drives the
	// PWM duty directly.
	emcEnAlgo = 0x80
)

type emc2301 struct {
	dev     i2c.RegIO
	closeFn func() error
}

func openEMC2301(busPath string, addr uint16) (Actuator, error) {
	bus, err := i2c.Open(busPath)
	if err != nil {
		return nil, fmt.Errorf("fancontrol: %w", err)
	}
	e, err := newEMC2301(bus.Dev(addr))
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	e.closeFn = bus.Close
	return e, nil
}

func newEMC2301(dev i2c.RegIO) (*emc2301, error) {
	manuf, err := dev.ReadRegU8(emcRegManufID)
	if err != nil {
		return nil, fmt.Errorf("fancontrol: emc2301 manufacturer id read failed: %w", err)
	}
	product, err := dev.ReadRegU8(emcRegProductID)
	if err != nil {
		return nil, fmt.Errorf("fancontrol: emc2301 product id read failed: %w", err)
	}
	if manuf != emcManufID || product != emcProductID {
		return nil, fmt.Errorf("fancontrol: emc2301 id=0x%02X/0x%02X want 0x%02X/0x%02X", manuf, product, emcManufID, emcProductID)
	}
	if err := i2c.UpdateBits(dev, emcRegFanConfig1, emcEnAlgo, 0); err != nil {
		return nil, fmt.Errorf("fancontrol: emc2301 select direct mode: %w", err)
	}
	return &emc2301{dev: dev}, nil
}

func (e *emc2301) Apply(ctx context.Context, speed uint8) error {
	if err := e.dev.WriteReg(emcRegFanSetting, speed); err != nil {
		return fmt.Errorf("fancontrol: emc2301 write fan setting: %w", err)
	}
	return nil
}

func (e *emc2301) Close() error {
	if e.closeFn == nil {
		return nil
	}
	err := e.closeFn()
	e.closeFn = nil
	return err
}
