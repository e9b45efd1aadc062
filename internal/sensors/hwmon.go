package sensors

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

var sensorsTemperaturesFn = host.SensorsTemperaturesWithContext

// hwmonReader selects one entry from the kernel hwmon tree by sensor key,
// e.g. "nvme_composite" or "cpu_thermal_input".
type hwmonReader struct {
	key string
}

func (r *hwmonReader) read(ctx context.Context) (float64, error) {
	temps, err := sensorsTemperaturesFn(ctx)
	// gopsutil returns partial results together with warnings for chips it
	// could not read.
	if len(temps) == 0 {
		if err != nil {
			return 0, fmt.Errorf("hwmon: %w", err)
		}
		return 0, fmt.Errorf("hwmon: no sensors")
	}

	found := false
	var best float64
	for _, t := range temps {
		if t.SensorKey == r.key {
			return t.Temperature, nil
		}
		if strings.HasPrefix(t.SensorKey, r.key) && (!found || t.Temperature > best) {
			best = t.Temperature
			found = true
		}
	}
	if !found {
		return 0, fmt.Errorf("hwmon: no sensor matches %q", r.key)
	}
	return best, nil
}

func (r *hwmonReader) close() error { return nil }
