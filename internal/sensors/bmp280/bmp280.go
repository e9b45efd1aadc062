// Package bmp280 reads the die temperature of a Bosch BMP280, used as an
// enclosure temperature sensor.
package bmp280

import (
	"encoding/binary"
	"fmt"
	"time"

	"thermal-governor/internal/i2c"
)

var sleep = time.Sleep

const (
	addrDefault = 0x77

	regID        = 0xD0
	chipIDBMP280 = 0x58

	regReset = 0xE0
	resetCmd = 0xB6

	regCalib00 = 0x88
	calibLen   = 6

	regCtrlMeas = 0xF4
	regConfig   = 0xF5
	regTempMsb  = 0xFA
)

type Device struct {
	dev i2c.RegIO

	digT1 uint16
	digT2 int16
	digT3 int16
}

func DefaultAddress() uint16 { return addrDefault }

func New(dev i2c.RegIO) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("bmp280: dev is nil")
	}
	d := &Device{dev: dev}

	id, err := d.dev.ReadRegU8(regID)
	if err != nil {
		return nil, fmt.Errorf("bmp280: id read failed: %w", err)
	}
	if id != chipIDBMP280 {
		return nil, fmt.Errorf("bmp280: chip id=0x%02X want 0x%02X", id, chipIDBMP280)
	}

	// After a soft reset the NVM coefficients take a few ms to load; reading
	// early returns zeros.
	_ = d.dev.WriteReg(regReset, resetCmd)
	sleep(5 * time.Millisecond)

	var calibErr error
	for i := 0; i < 3; i++ {
		calibErr = d.readCalibration()
		if calibErr != nil {
			sleep(5 * time.Millisecond)
			continue
		}
		if d.digT1 != 0 {
			break
		}
		calibErr = fmt.Errorf("bmp280: calibration invalid (digT1=0)")
		sleep(5 * time.Millisecond)
	}
	if calibErr != nil {
		return nil, calibErr
	}

	// t_sb=1000ms, filter off.
	_ = d.dev.WriteReg(regConfig, 0x05<<5)

	// osrs_t=x2, pressure skipped, normal mode.
	ctrl := byte(0x02<<5) | 0x03
	if err := d.dev.WriteReg(regCtrlMeas, ctrl); err != nil {
		return nil, fmt.Errorf("bmp280: ctrl_meas write failed: %w", err)
	}
	return d, nil
}

func (d *Device) readCalibration() error {
	buf := make([]byte, calibLen)
	if err := d.dev.ReadReg(regCalib00, buf); err != nil {
		return fmt.Errorf("bmp280: read calib failed: %w", err)
	}
	d.digT1 = binary.LittleEndian.Uint16(buf[0:2])
	d.digT2 = int16(binary.LittleEndian.Uint16(buf[2:4]))
	d.digT3 = int16(binary.LittleEndian.Uint16(buf[4:6]))
	return nil
}

// ReadTempC returns the compensated temperature in °C.
func (d *Device) ReadTempC() (float64, error) {
	buf := make([]byte, 3)
	if err := d.dev.ReadReg(regTempMsb, buf); err != nil {
		return 0, fmt.Errorf("bmp280: read temp failed: %w", err)
	}
	adcT := int32(buf[0])<<12 | int32(buf[1])<<4 | int32(buf[2])>>4
	// 0x80000 is the value reported while a measurement is skipped.
	if adcT == 0x80000 {
		return 0, fmt.Errorf("bmp280: no temperature sample yet")
	}
	return d.compensateTemp(adcT), nil
}

// compensateTemp is the datasheet floating point formula (section 8.1).
func (d *Device) compensateTemp(adcT int32) float64 {
	var1 := (float64(adcT)/16384.0 - float64(d.digT1)/1024.0) * float64(d.digT2)
	var2 := float64(adcT)/131072.0 - float64(d.digT1)/8192.0
	var2 = var2 * var2 * float64(d.digT3)
	return (var1 + var2) / 5120.0
}
