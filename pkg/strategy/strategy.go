// Package strategy implements the tiered extraction chain: ranked
// strategies that turn rendered page content into a raw field candidate,
// tried in priority order with graceful fallback.
package strategy

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fangwatch/fangwatch/internal/logger"
	"github.com/fangwatch/fangwatch/pkg/metric"
	"github.com/fangwatch/fangwatch/pkg/renderer"
)

// Strategy extracts a raw candidate from rendered page content.
type Strategy interface {
	// Extract attempts to populate the group's fields from the content.
	// A candidate missing every field is a valid result, not an error.
	Extract(ctx context.Context, content renderer.Content, g metric.Group) (metric.Candidate, error)

	// Name returns the strategy identifier.
	Name() string

	// Accepts reports whether the strategy can consume the given raw
	// content representation.
	Accepts(kind renderer.Kind) bool

	// Available returns true if the strategy is properly configured
	// (e.g. has the API key its backend requires). Availability never
	// involves network I/O, so it can be checked before any request.
	Available() bool
}

// ErrNoStrategyAvailable is returned when no strategy in the chain has its
// required configuration. It is a configuration error, detected upfront.
var ErrNoStrategyAvailable = errors.New("no extraction strategy available")

// BackendConfig holds common settings for strategies backed by a remote
// inference or OCR service.
type BackendConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// DefaultRequestTimeout bounds a single backend request.
const DefaultRequestTimeout = 60 * time.Second

// Chain tries each strategy in order and stops at the first candidate that
// satisfies the acceptance predicate: at least one of the group's fields is
// present. Strategy failures are logged and absorbed; an exhausted chain
// yields an empty candidate rather than an error.
type Chain struct {
	strategies []Strategy
}

// NewChain creates a chain from the given strategies, tried in order.
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Extract runs the chain for one group.
func (c *Chain) Extract(ctx context.Context, content renderer.Content, g metric.Group) metric.Candidate {
	for _, s := range c.strategies {
		if !s.Available() {
			continue
		}
		if !usable(s, content) {
			logger.Debug("strategy lacks usable content, skipping",
				"strategy", s.Name(), "group", g.Name)
			continue
		}

		candidate, err := s.Extract(ctx, content, g)
		if err != nil {
			logger.Warn("strategy failed, falling back",
				"strategy", s.Name(), "group", g.Name, "error", err)
			continue
		}
		if candidate.HasAny(g) {
			logger.Info("extraction succeeded",
				"strategy", s.Name(), "group", g.Name, "fields", len(candidate))
			return candidate
		}
		logger.Debug("strategy produced no fields, falling back",
			"strategy", s.Name(), "group", g.Name)
	}

	logger.Warn("all strategies exhausted", "group", g.Name)
	return metric.Candidate{}
}

// Available returns true if at least one strategy is configured.
func (c *Chain) Available() bool {
	for _, s := range c.strategies {
		if s.Available() {
			return true
		}
	}
	return false
}

// Name returns the chain composition, e.g. "chain(gemini-ocr->regex)".
func (c *Chain) Name() string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return "chain(" + strings.Join(names, "->") + ")"
}

// usable reports whether the content carries a representation the strategy
// accepts.
func usable(s Strategy, content renderer.Content) bool {
	if s.Accepts(renderer.KindImage) && content.HasImage() {
		return true
	}
	if s.Accepts(renderer.KindText) && content.HasText() {
		return true
	}
	return false
}
