package sensors

import (
	"context"
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v3/host"
)

func stubTemperatures(t *testing.T, temps []host.TemperatureStat, err error) {
	t.Helper()
	old := sensorsTemperaturesFn
	sensorsTemperaturesFn = func(context.Context) ([]host.TemperatureStat, error) { return temps, err }
	t.Cleanup(func() { sensorsTemperaturesFn = old })
}

func TestHwmonReader_ExactKeyWins(t *testing.T) {
	stubTemperatures(t, []host.TemperatureStat{
		{SensorKey: "nvme_composite", Temperature: 41},
		{SensorKey: "nvme_sensor_1", Temperature: 55},
		{SensorKey: "nvme", Temperature: 39},
	}, nil)

	v, err := (&hwmonReader{key: "nvme"}).read(context.Background())
	if err != nil || v != 39 {
		t.Fatalf("v=%v err=%v want 39", v, err)
	}
}

func TestHwmonReader_PrefixTakesHottest(t *testing.T) {
	stubTemperatures(t, []host.TemperatureStat{
		{SensorKey: "coretemp_core_0", Temperature: 51},
		{SensorKey: "coretemp_core_1", Temperature: 57},
		{SensorKey: "acpitz", Temperature: 70},
	}, nil)

	v, err := (&hwmonReader{key: "coretemp_core"}).read(context.Background())
	if err != nil || v != 57 {
		t.Fatalf("v=%v err=%v want 57", v, err)
	}
}

func TestHwmonReader_PartialResultsStillUsed(t *testing.T) {
	stubTemperatures(t, []host.TemperatureStat{
		{SensorKey: "cpu_thermal_input", Temperature: 48.7},
	}, errors.New("could not read iio_hwmon"))

	v, err := (&hwmonReader{key: "cpu_thermal"}).read(context.Background())
	if err != nil || v != 48.7 {
		t.Fatalf("v=%v err=%v want 48.7", v, err)
	}
}

func TestHwmonReader_Errors(t *testing.T) {
	stubTemperatures(t, nil, errors.New("no hwmon"))
	if _, err := (&hwmonReader{key: "cpu"}).read(context.Background()); err == nil {
		t.Fatalf("expected error with no sensors")
	}

	stubTemperatures(t, []host.TemperatureStat{{SensorKey: "acpitz", Temperature: 40}}, nil)
	if _, err := (&hwmonReader{key: "nvme"}).read(context.Background()); err == nil {
		t.Fatalf("expected error for unmatched key")
	}
}
