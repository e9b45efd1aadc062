package i2c

import (
	"errors"
	"testing"
)

type regFile struct {
	regs   map[byte]byte
	writes int
	fail   bool
}

func (r *regFile) ReadRegU8(reg byte) (byte, error) {
	if r.fail {
		return 0, errors.New("nack")
	}
	return r.regs[reg], nil
}

func (r *regFile) ReadReg(reg byte, dst []byte) error {
	for i := range dst {
		dst[i] = r.regs[reg+byte(i)]
	}
	return nil
}

func (r *regFile) WriteReg(reg, value byte) error {
	r.writes++
	r.regs[reg] = value
	return nil
}

func TestUpdateBits(t *testing.T) {
	r := &regFile{regs: map[byte]byte{0x32: 0xAB}}
	if err := UpdateBits(r, 0x32, 0x80, 0x00); err != nil {
		t.Fatalf("UpdateBits: %v", err)
	}
	if got := r.regs[0x32]; got != 0x2B {
		t.Fatalf("reg=0x%02X want 0x2B", got)
	}
	if err := UpdateBits(r, 0x32, 0x80, 0x00); err != nil {
		t.Fatalf("UpdateBits: %v", err)
	}
	if r.writes != 1 {
		t.Fatalf("writes=%d want 1, unchanged value must not be rewritten", r.writes)
	}
}

func TestUpdateBits_ReadError(t *testing.T) {
	r := &regFile{regs: map[byte]byte{}, fail: true}
	if err := UpdateBits(r, 0x32, 0x80, 0x80); err == nil {
		t.Fatalf("expected error")
	}
	if r.writes != 0 {
		t.Fatalf("writes=%d want 0", r.writes)
	}
}

func TestBusNumber(t *testing.T) {
	cases := []struct {
		path string
		want int
		ok   bool
	}{
		{"/dev/i2c-1", 1, true},
		{"/dev/i2c-13", 13, true},
		{"/dev/i2c-", 0, false},
		{"/dev/spidev0.0", 0, false},
		{"/dev/i2c-x", 0, false},
	}
	for _, tc := range cases {
		got, err := BusNumber(tc.path)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("BusNumber(%q)=%d,%v want %d", tc.path, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("BusNumber(%q) expected error", tc.path)
		}
	}
}
