// Package i2c talks to register-mapped chips on a Linux /dev/i2c-N bus.
package i2c

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// RegIO is the register access used by chip drivers. *Dev implements it;
// tests substitute an in-memory register file.
type RegIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

// BusNumber extracts N from a /dev/i2c-N path, for drivers that address buses
// by number.
func BusNumber(path string) (int, error) {
	base := filepath.Base(filepath.Clean(path))
	rest, ok := strings.CutPrefix(base, "i2c-")
	if !ok {
		return 0, fmt.Errorf("i2c: %q is not an i2c-N device", path)
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("i2c: %q is not an i2c-N device", path)
	}
	return n, nil
}

// UpdateBits performs a read-modify-write of the bits selected by mask.
// The write is skipped when the register already holds the wanted value.
func UpdateBits(d RegIO, reg, mask, value byte) error {
	cur, err := d.ReadRegU8(reg)
	if err != nil {
		return fmt.Errorf("i2c: read reg 0x%02X: %w", reg, err)
	}
	next := (cur &^ mask) | (value & mask)
	if next == cur {
		return nil
	}
	if err := d.WriteReg(reg, next); err != nil {
		return fmt.Errorf("i2c: write reg 0x%02X: %w", reg, err)
	}
	return nil
}
