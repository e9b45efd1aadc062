package config

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that also accepts a bare number of seconds,
// so "30", "1.5" and "30s" all decode.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return &yaml.TypeError{Errors: []string{
			fmt.Sprintf("line %d: cannot parse a %s as a duration", n.Line, kindName(n.Kind)),
		}}
	}
	switch n.ShortTag() {
	case "!!int", "!!float":
		secs, err := strconv.ParseFloat(n.Value, 64)
		if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
			return invalidDuration(n)
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(n.Value)
	if err != nil {
		return invalidDuration(n)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) String() string { return time.Duration(d).String() }

func invalidDuration(n *yaml.Node) error {
	return &yaml.TypeError{Errors: []string{
		fmt.Sprintf("line %d: cannot parse %q as a duration (use seconds like 30 or a unit like 30s)", n.Line, n.Value),
	}}
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	}
	return "non-scalar"
}
