package metric

import (
	"math"
	"strconv"
	"strings"
)

// tenThousand is the multiplier for values expressed in 万 units.
const tenThousand = 10000

// Normalize converts a raw candidate into a canonical MetricGroup according
// to the group's field schema. It is a pure function: unparseable or absent
// raw values leave the corresponding field absent, never zero, and never
// produce an error.
//
// Rules:
//   - count fields parse as non-negative whole numbers; grouping commas and
//     a trailing 套 suffix are stripped.
//   - area fields parse as non-negative floats and are never rounded.
//   - an explicit 万 marker in the raw value multiplies the area by 10000;
//     with no marker the same conversion applies when the parsed value falls
//     below the field's MinPlausible floor. The floor is a magnitude
//     heuristic and can misfire on genuinely tiny daily totals; it is kept
//     here, in one place, so it can be tested and revised on its own.
//   - AvgArea is derived, never supplied: round(area/units, 2) iff units > 0
//     and both operands are present.
func Normalize(c Candidate, g Group) MetricGroup {
	out := MetricGroup{Note: g.Note}

	for _, f := range g.Fields {
		raw, ok := c[f.Key]
		if !ok {
			continue
		}
		switch f.Kind {
		case FieldCount:
			if n, ok := parseCount(raw); ok {
				out.Units = &n
			}
		case FieldArea:
			if v, ok := parseArea(raw, f.MinPlausible); ok {
				out.Area = &v
			}
		}
	}

	if out.Units != nil && *out.Units > 0 && out.Area != nil {
		avg := round2(*out.Area / float64(*out.Units))
		out.AvgArea = &avg
	}
	return out
}

// parseCount parses a non-negative whole count, tolerating grouping commas,
// whitespace, and a 套 unit suffix.
func parseCount(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "套")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// parseArea parses a non-negative area in square meters. A 万 marker in the
// raw text, or a value below minPlausible, triggers the ×10000 conversion.
func parseArea(raw string, minPlausible float64) (float64, bool) {
	s := strings.TrimSpace(raw)
	inTenThousands := strings.Contains(s, "万")
	for _, unit := range []string{"万平方米", "万㎡", "万", "平方米", "㎡"} {
		s = strings.ReplaceAll(s, unit, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	if inTenThousands {
		return v * tenThousand, true
	}
	if minPlausible > 0 && v > 0 && v < minPlausible {
		return v * tenThousand, true
	}
	return v, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
