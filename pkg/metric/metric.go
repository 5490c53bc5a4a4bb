// Package metric defines the data model for daily real-estate indicators:
// metric groups, daily records, extraction candidates, and the normalization
// rules that turn raw extracted values into canonical numbers.
package metric

import "time"

// MetricGroup is one logical measurement for a day, e.g. secondary-market
// transactions. Nil pointers mean the value could not be extracted; they are
// persisted as explicit JSON nulls so "not found" is distinguishable from a
// genuine zero.
type MetricGroup struct {
	Units   *int64   `json:"units"`
	Area    *float64 `json:"area"`
	AvgArea *float64 `json:"avg_area"`
	Note    string   `json:"note"`
}

// Empty reports whether no numeric field was extracted.
func (g MetricGroup) Empty() bool {
	return g.Units == nil && g.Area == nil && g.AvgArea == nil
}

// DailyRecord holds all metric groups captured on one calendar date.
// Date is the natural key, formatted as 2006-01-02.
type DailyRecord struct {
	Date       string                 `json:"date"`
	CapturedAt time.Time              `json:"captured_at"`
	Groups     map[string]MetricGroup `json:"groups"`
}

// Candidate is a strategy-local extraction result mapping field keys to raw
// textual values. Fields a strategy could not find are absent keys, never
// empty or zero values. Candidates are transient and never persisted.
type Candidate map[string]string

// Has reports whether the field was found by the strategy.
func (c Candidate) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// HasAny reports whether at least one of the group's fields is present.
// This is the acceptance predicate for the extraction chain.
func (c Candidate) HasAny(g Group) bool {
	for _, f := range g.Fields {
		if c.Has(f.Key) {
			return true
		}
	}
	return false
}
