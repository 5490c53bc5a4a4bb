package strategy

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/fangwatch/fangwatch/internal/logger"
	"github.com/fangwatch/fangwatch/pkg/metric"
	"github.com/fangwatch/fangwatch/pkg/renderer"
)

// Regex extracts fields from rendered text with the group's labelled
// patterns. It needs no credentials and no network, making it the cheapest
// and most robust tier of the chain.
type Regex struct {
	cache map[string]*regexp.Regexp
}

// NewRegex creates the regex strategy.
func NewRegex() *Regex {
	return &Regex{cache: make(map[string]*regexp.Regexp)}
}

func (r *Regex) Name() string { return "regex" }
func (r *Regex) Accepts(kind renderer.Kind) bool { return kind == renderer.KindText }
func (r *Regex) Available() bool { return true }

// Extract matches the group's field patterns against the page text.
func (r *Regex) Extract(_ context.Context, content renderer.Content, g metric.Group) (metric.Candidate, error) {
	return r.parseText(content.Text, g), nil
}

// parseText runs the labelled patterns, then the aggregate fallback, over
// arbitrary text. The OCR strategy reuses it on transcribed screenshots.
func (r *Regex) parseText(text string, g metric.Group) metric.Candidate {
	candidate := metric.Candidate{}

	for _, f := range g.Fields {
		for _, pattern := range f.Patterns {
			re := r.compile(pattern)
			if re == nil {
				continue
			}
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			raw := m[1]
			// A second capture group carries the 万 unit marker; keep it
			// attached so the normalizer sees the conversion trigger.
			if len(m) > 2 && m[2] != "" {
				raw += m[2]
			}
			candidate[f.Key] = raw
			break
		}

		if !candidate.Has(f.Key) && f.Aggregate {
			if raw, ok := maxSuffixedNumber(text); ok {
				candidate[f.Key] = raw
			}
		}
	}
	return candidate
}

func (r *Regex) compile(pattern string) *regexp.Regexp {
	if re, ok := r.cache[pattern]; ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		logger.Debug("invalid field pattern, skipping", "pattern", pattern, "error", err)
		r.cache[pattern] = nil
		return nil
	}
	r.cache[pattern] = re
	return re
}

var suffixedNumberRe = regexp.MustCompile(`([0-9][0-9,]*)\s*套`)

// maxSuffixedNumber finds the largest 套-suffixed count in the text. It is a
// last resort for unlabelled aggregate totals: on ranking pages the
// city-wide sum dominates every per-district figure.
func maxSuffixedNumber(text string) (string, bool) {
	matches := suffixedNumberRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", false
	}

	var best string
	var bestVal int64 = -1
	for _, m := range matches {
		v, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
		if err != nil {
			continue
		}
		if v > bestVal {
			bestVal = v
			best = m[1]
		}
	}
	if bestVal < 0 {
		return "", false
	}
	return best, true
}
