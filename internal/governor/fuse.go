package governor

import "math"

// Reading is one poll of one sensor. OK is false when the sensor could not be
// read; Value is meaningless in that case.
type Reading struct {
	Source string  `json:"source"`
	Value  float64 `json:"value_c"`
	OK     bool    `json:"ok"`
}

// Fuse applies each source's calibration offset and returns the hottest
// adjusted reading. Non-finite values count as absent. The result is absent
// only when no reading is usable.
func Fuse(readings []Reading, offsets map[string]float64) (float64, bool) {
	var (
		best  float64
		found bool
	)
	for _, r := range readings {
		if !r.OK || math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			continue
		}
		v := r.Value + offsets[r.Source]
		if !found || v > best {
			best = v
			found = true
		}
	}
	return best, found
}
