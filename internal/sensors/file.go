package sensors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// fileReader reads a sysfs style temperature file. The path may be a glob
// (hwmon indices are not stable across boots); the first match wins. The raw
// number is multiplied by scale, 0.001 for the kernel's milli-°C files.
type fileReader struct {
	path  string
	scale float64
}

func (r *fileReader) read(ctx context.Context) (float64, error) {
	p, err := resolvePath(r.path)
	if err != nil {
		return 0, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return 0, fmt.Errorf("read temp: %w", err)
	}
	v, err := parseReading(string(b))
	if err != nil {
		return 0, err
	}
	return v * r.scale, nil
}

func (r *fileReader) close() error { return nil }

func resolvePath(pattern string) (string, error) {
	if !strings.ContainsAny(pattern, "*?[") {
		return pattern, nil
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("glob %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no file matches %q", pattern)
	}
	sort.Strings(matches)
	return matches[0], nil
}

func parseReading(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("temp empty")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse temp %q: %w", s, err)
	}
	return v, nil
}
