package fancontrol

// pwmDriver is a percent-duty output: sysfs PWM, memory-mapped PWM or a plain
// GPIO line.
//
// Duty is 0..100. Close releases the device and leaves the output at its last
// duty.
type pwmDriver interface {
	SetFrequencyHz(hz int) error
	SetDutyPercent(p float64) error
	Close() error
}
