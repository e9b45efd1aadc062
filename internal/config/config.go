package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"thermal-governor/internal/governor"
)

// Sensor kinds.
const (
	KindFile    = "file"
	KindHwmon   = "hwmon"
	KindCommand = "command"
	KindBMP280  = "bmp280"
	KindMCP9808 = "mcp9808"
	KindNATS    = "nats"
)

// Fan backends.
const (
	BackendEMC2301  = "emc2301"
	BackendSysfsPWM = "sysfs-pwm"
	BackendHwmonPWM = "hwmon-pwm"
	BackendGPIO     = "gpio"
	BackendRPIO     = "rpio"
	BackendLog      = "log"
)

// MCP9808Addr is the only address the mcp9808 driver talks to.
const MCP9808Addr = 0x18

// Default sysfs paths for the well-known sensor IDs.
const (
	DefaultCPUTempPath  = "/sys/class/thermal/thermal_zone0/temp"
	DefaultNVMeTempPath = "/sys/class/nvme/nvme0/hwmon*/temp1_input"
)

type Config struct {
	Governor  GovernorConfig  `yaml:"governor"`
	Sensors   []SensorConfig  `yaml:"sensors"`
	Fan       FanConfig       `yaml:"fan"`
	Status    StatusConfig    `yaml:"status"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// GovernorConfig uses pointers so that an explicit zero (min_speed: 0,
// low_duration: 0s) can be told apart from an omitted key.
type GovernorConfig struct {
	LowThreshold      *float64  `yaml:"low_threshold"`
	HighThreshold     *float64  `yaml:"high_threshold"`
	VeryHighThreshold *float64  `yaml:"very_high_threshold"`
	MinSpeed          *int      `yaml:"min_speed"`
	MaxSpeed          *int      `yaml:"max_speed"`
	LowDuration       *Duration `yaml:"low_duration"`
	VeryHighDuration  *Duration `yaml:"very_high_duration"`
	PollInterval      *Duration `yaml:"poll_interval"`
	CurveExponent     *float64  `yaml:"curve_exponent"`
}

type SensorConfig struct {
	ID     string  `yaml:"id"`
	Kind   string  `yaml:"kind"`
	Offset float64 `yaml:"offset"`

	// file
	Path string `yaml:"path"`

	// hwmon
	SensorKey string `yaml:"sensor_key"`

	// file / command. Multiplies the raw number; file defaults to 0.001
	// (milli-°C), command to 1.
	Scale float64 `yaml:"scale"`

	// command
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`

	// bmp280 / mcp9808
	I2CBus  string `yaml:"i2c_bus"`
	I2CAddr uint16 `yaml:"i2c_addr"`

	// nats
	URL     string   `yaml:"url"`
	Subject string   `yaml:"subject"`
	MaxAge  Duration `yaml:"max_age"`
}

type FanConfig struct {
	Backend string `yaml:"backend"`

	// emc2301
	I2CBus  string `yaml:"i2c_bus"`
	I2CAddr uint16 `yaml:"i2c_addr"`

	// sysfs-pwm. An empty chip picks the first pwmchip exposing a channel.
	PWMChip      string `yaml:"pwm_chip"`
	PWMChannel   int    `yaml:"pwm_channel"`
	PWMFrequency int    `yaml:"pwm_frequency"`

	// hwmon-pwm
	PWMPath string `yaml:"pwm_path"`

	// gpio / rpio, BCM numbering.
	Pin int `yaml:"pin"`

	SelfTest     bool     `yaml:"self_test"`
	SelfTestFull Duration `yaml:"self_test_full"`
	SelfTestMin  Duration `yaml:"self_test_min"`
}

type StatusConfig struct {
	// Listen is the HTTP address for /api/status and /metrics. Empty disables it.
	Listen   string `yaml:"listen"`
	LogLines int    `yaml:"log_lines"`
}

type TelemetryConfig struct {
	NATS NATSTelemetryConfig `yaml:"nats"`
	UDP  UDPTelemetryConfig  `yaml:"udp"`
}

type NATSTelemetryConfig struct {
	Enable  bool   `yaml:"enable"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type UDPTelemetryConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

// Load reads, defaults and validates a YAML config. A missing file is an
// error; an empty file yields the defaults.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse is Load without the file read.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			return Config{}, describeTypeError(typeErr)
		}
		return Config{}, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// describeTypeError separates misspelled keys from values of the wrong type;
// yaml.v3 reports both through one TypeError.
func describeTypeError(e *yaml.TypeError) error {
	var unknown, invalid []string
	for _, msg := range stripLinePrefixes(e.Errors) {
		if strings.Contains(msg, " not found in type ") {
			unknown = append(unknown, msg)
		} else {
			invalid = append(invalid, msg)
		}
	}
	var parts []string
	if len(unknown) > 0 {
		parts = append(parts, "config contains unknown fields: "+strings.Join(unknown, "; "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "config has invalid values: "+strings.Join(invalid, "; "))
	}
	return errors.New(strings.Join(parts, "; "))
}

func stripLinePrefixes(errs []string) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		if strings.HasPrefix(e, "line ") {
			if i := strings.Index(e, ": "); i >= 0 {
				e = e[i+2:]
			}
		}
		out = append(out, e)
	}
	return out
}

func float64Ptr(v float64) *float64 { return &v }
func intPtr(v int) *int { return &v }
func durationPtr(v time.Duration) *Duration {
	d := Duration(v)
	return &d
}

// Defaults target the reference deployment: a Pi with a Waveshare EMC2301 fan
// hat, CPU and NVMe sensors, the NVMe reading shifted up by 5°C.
func (c *Config) applyDefaults() {
	g := &c.Governor
	if g.LowThreshold == nil {
		g.LowThreshold = float64Ptr(45)
	}
	if g.HighThreshold == nil {
		g.HighThreshold = float64Ptr(55)
	}
	if g.VeryHighThreshold == nil {
		g.VeryHighThreshold = float64Ptr(75)
	}
	if g.MinSpeed == nil {
		g.MinSpeed = intPtr(100)
	}
	if g.MaxSpeed == nil {
		g.MaxSpeed = intPtr(255)
	}
	if g.LowDuration == nil {
		g.LowDuration = durationPtr(30 * time.Second)
	}
	if g.VeryHighDuration == nil {
		g.VeryHighDuration = durationPtr(10 * time.Second)
	}
	if g.PollInterval == nil {
		g.PollInterval = durationPtr(5 * time.Second)
	}
	if g.CurveExponent == nil {
		g.CurveExponent = float64Ptr(governor.DefaultCurveExponent)
	}

	if len(c.Sensors) == 0 {
		c.Sensors = []SensorConfig{
			{ID: "cpu", Kind: KindFile},
			{ID: "nvme", Kind: KindFile, Offset: 5},
		}
	}
	for i := range c.Sensors {
		s := &c.Sensors[i]
		if s.Kind == "" {
			s.Kind = KindFile
		}
		switch s.Kind {
		case KindFile:
			if s.Scale == 0 {
				s.Scale = 0.001
			}
			if s.Path == "" {
				switch s.ID {
				case "cpu":
					s.Path = DefaultCPUTempPath
				case "nvme":
					s.Path = DefaultNVMeTempPath
				}
			}
		case KindCommand:
			if s.Scale == 0 {
				s.Scale = 1
			}
		case KindBMP280:
			if s.I2CBus == "" {
				s.I2CBus = "/dev/i2c-1"
			}
			if s.I2CAddr == 0 {
				s.I2CAddr = 0x77
			}
		case KindMCP9808:
			if s.I2CBus == "" {
				s.I2CBus = "/dev/i2c-1"
			}
		case KindNATS:
			if s.URL == "" {
				s.URL = "nats://127.0.0.1:4222"
			}
			if s.MaxAge <= 0 {
				s.MaxAge = 3 * *g.PollInterval
			}
		}
	}

	f := &c.Fan
	if f.Backend == "" {
		f.Backend = BackendEMC2301
	}
	if f.I2CBus == "" {
		f.I2CBus = "/dev/i2c-1"
	}
	if f.I2CAddr == 0 {
		f.I2CAddr = 0x2F
	}
	if f.PWMFrequency == 0 {
		f.PWMFrequency = 25000
	}
	if f.Pin == 0 {
		f.Pin = 18
	}
	if f.SelfTestFull <= 0 {
		f.SelfTestFull = Duration(5 * time.Second)
	}
	if f.SelfTestMin <= 0 {
		f.SelfTestMin = Duration(10 * time.Second)
	}

	if c.Status.LogLines <= 0 {
		c.Status.LogLines = 500
	}
	if c.Telemetry.NATS.URL == "" {
		c.Telemetry.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.Telemetry.NATS.Subject == "" {
		c.Telemetry.NATS.Subject = "thermal.governor.state"
	}
}

var rpioPWMPins = map[int]bool{12: true, 13: true, 18: true, 19: true}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func (c *Config) validate() error {
	g := c.Governor
	for _, th := range []struct {
		name string
		v    float64
	}{
		{"governor.low_threshold", *g.LowThreshold},
		{"governor.high_threshold", *g.HighThreshold},
		{"governor.very_high_threshold", *g.VeryHighThreshold},
	} {
		if !finite(th.v) {
			return fmt.Errorf("%s must be a finite number", th.name)
		}
	}
	if !(*g.LowThreshold < *g.HighThreshold) {
		return fmt.Errorf("governor.low_threshold must be < governor.high_threshold")
	}
	if !(*g.HighThreshold < *g.VeryHighThreshold) {
		return fmt.Errorf("governor.high_threshold must be < governor.very_high_threshold")
	}
	if *g.MinSpeed < 0 || *g.MinSpeed > 255 {
		return fmt.Errorf("governor.min_speed must be in [0,255]")
	}
	if *g.MaxSpeed < 0 || *g.MaxSpeed > 255 {
		return fmt.Errorf("governor.max_speed must be in [0,255]")
	}
	if *g.MinSpeed > *g.MaxSpeed {
		return fmt.Errorf("governor.min_speed must be <= governor.max_speed")
	}
	if *g.LowDuration < 0 {
		return fmt.Errorf("governor.low_duration must be >= 0")
	}
	if *g.VeryHighDuration < 0 {
		return fmt.Errorf("governor.very_high_duration must be >= 0")
	}
	if *g.PollInterval <= 0 {
		return fmt.Errorf("governor.poll_interval must be > 0")
	}
	if !finite(*g.CurveExponent) || *g.CurveExponent <= 0 {
		return fmt.Errorf("governor.curve_exponent must be > 0")
	}

	seen := make(map[string]bool, len(c.Sensors))
	for i, s := range c.Sensors {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("sensors[%d].id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("sensors[%d].id %q is duplicated", i, s.ID)
		}
		seen[s.ID] = true
		if !finite(s.Offset) {
			return fmt.Errorf("sensors[%d].offset must be a finite number", i)
		}
		switch s.Kind {
		case KindFile:
			if s.Path == "" {
				return fmt.Errorf("sensors[%d].path is required for kind %q", i, s.Kind)
			}
			if !finite(s.Scale) {
				return fmt.Errorf("sensors[%d].scale must be a finite number", i)
			}
		case KindHwmon:
			if s.SensorKey == "" {
				return fmt.Errorf("sensors[%d].sensor_key is required for kind %q", i, s.Kind)
			}
		case KindCommand:
			if s.Command == "" {
				return fmt.Errorf("sensors[%d].command is required for kind %q", i, s.Kind)
			}
			if !finite(s.Scale) {
				return fmt.Errorf("sensors[%d].scale must be a finite number", i)
			}
		case KindBMP280, KindMCP9808:
			if s.I2CAddr > 0x7F {
				return fmt.Errorf("sensors[%d].i2c_addr must be a 7-bit address", i)
			}
			if s.Kind == KindMCP9808 && s.I2CAddr != 0 && s.I2CAddr != MCP9808Addr {
				return fmt.Errorf("sensors[%d].i2c_addr must be 0x18 for kind %q", i, s.Kind)
			}
		case KindNATS:
			if s.Subject == "" {
				return fmt.Errorf("sensors[%d].subject is required for kind %q", i, s.Kind)
			}
		default:
			return fmt.Errorf("sensors[%d].kind %q is not supported", i, s.Kind)
		}
	}

	f := c.Fan
	switch f.Backend {
	case BackendEMC2301:
		if f.I2CAddr > 0x7F {
			return fmt.Errorf("fan.i2c_addr must be a 7-bit address")
		}
	case BackendSysfsPWM, BackendRPIO:
		if f.PWMFrequency < 0 {
			return fmt.Errorf("fan.pwm_frequency must be > 0")
		}
		if f.PWMChannel < 0 {
			return fmt.Errorf("fan.pwm_channel must be >= 0")
		}
		if f.Backend == BackendRPIO && !rpioPWMPins[f.Pin] {
			return fmt.Errorf("fan.pin %d has no hardware pwm (use 12, 13, 18 or 19)", f.Pin)
		}
	case BackendHwmonPWM:
		if f.PWMPath == "" {
			return fmt.Errorf("fan.pwm_path is required for backend %q", f.Backend)
		}
	case BackendGPIO:
		if f.Pin <= 0 {
			return fmt.Errorf("fan.pin must be > 0")
		}
	case BackendLog:
	default:
		return fmt.Errorf("fan.backend %q is not supported", f.Backend)
	}

	if c.Telemetry.UDP.Enable && c.Telemetry.UDP.Dest == "" {
		return fmt.Errorf("telemetry.udp.dest is required when telemetry.udp.enable is true")
	}
	return nil
}

// Core converts the validated governor section into the decision config.
func (c Config) Core() governor.Config {
	g := c.Governor
	return governor.Config{
		LowThreshold:      *g.LowThreshold,
		HighThreshold:     *g.HighThreshold,
		VeryHighThreshold: *g.VeryHighThreshold,
		MinSpeed:          uint8(*g.MinSpeed),
		MaxSpeed:          uint8(*g.MaxSpeed),
		LowDuration:       time.Duration(*g.LowDuration),
		VeryHighDuration:  time.Duration(*g.VeryHighDuration),
		PollInterval:      time.Duration(*g.PollInterval),
		CurveExponent:     *g.CurveExponent,
	}
}

// Offsets returns the per-sensor calibration offsets keyed by sensor ID.
func (c Config) Offsets() map[string]float64 {
	out := make(map[string]float64, len(c.Sensors))
	for _, s := range c.Sensors {
		if s.Offset != 0 {
			out[s.ID] = s.Offset
		}
	}
	return out
}
