// Package renderer defines the interface for rendering pages to content the
// extraction strategies can consume: a screenshot of the settled page and
// its visible text. Implement Renderer to plug in a different browser
// backend.
package renderer

import (
	"context"
	"errors"
	"time"
)

// Renderer produces the rendered representation of a page.
type Renderer interface {
	// Render navigates to url, waits for the page to settle, and returns
	// both a full-page screenshot and the extracted visible text.
	Render(ctx context.Context, url string, opts Options) (Content, error)

	// Close releases browser resources.
	Close() error
}

// Kind identifies which raw representation a strategy consumes.
type Kind string

const (
	KindImage Kind = "image"
	KindText  Kind = "text"
)

// Options controls rendering behavior.
type Options struct {
	Timeout      time.Duration
	WaitDuration time.Duration // additional wait after load settles
}

// Content is the rendered page in both representations.
type Content struct {
	URL        string
	Image      []byte // full-page PNG screenshot
	Text       string // visible text, whitespace-normalized
	Title      string
	RenderedAt time.Time
}

// HasImage reports whether a screenshot was captured.
func (c Content) HasImage() bool { return len(c.Image) > 0 }

// HasText reports whether visible text was extracted.
func (c Content) HasText() bool { return c.Text != "" }

// ErrRenderTimeout indicates the page did not settle within the timeout.
var ErrRenderTimeout = errors.New("render timeout")
