// Package pipeline drives one collection run: check the history for
// today's record, render each group's page, run the extraction chain,
// normalize, and upsert the assembled daily record.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/fangwatch/fangwatch/internal/history"
	"github.com/fangwatch/fangwatch/internal/logger"
	"github.com/fangwatch/fangwatch/pkg/metric"
	"github.com/fangwatch/fangwatch/pkg/renderer"
	"github.com/fangwatch/fangwatch/pkg/strategy"
)

// dateLayout is the history key format.
const dateLayout = "2006-01-02"

// defaultRenderWait matches the source site's post-load settle time.
const defaultRenderWait = 3 * time.Second

// Config is the explicit value object configuring a run. No field is read
// from the environment here; the command layer resolves credentials and
// flags before constructing the driver.
type Config struct {
	Store    *history.Store    `validate:"required"`
	Renderer renderer.Renderer `validate:"required"`
	Chain    *strategy.Chain   `validate:"required"`
	Groups   []metric.Group    `validate:"required,min=1"`

	// MinRequestInterval is the mandatory idle time between page renders,
	// a courtesy toward the source site. Zero disables spacing.
	MinRequestInterval time.Duration `validate:"min=0"`

	// Force re-ingests and overwrites an existing record for today.
	Force bool

	// ArtifactDir, when set, receives write-only debug screenshots named
	// debug_<group>_<date>.png.
	ArtifactDir string

	// RenderTimeout bounds a single page render. Zero uses the renderer's
	// default.
	RenderTimeout time.Duration

	// Now is an injectable clock for tests. Defaults to time.Now.
	Now func() time.Time
}

// Result reports what a run did.
type Result struct {
	Outcome history.Outcome
	Record  metric.DailyRecord
}

// Driver executes runs sequentially: groups are fetched one at a time so
// the inter-request spacing holds.
type Driver struct {
	cfg  Config
	wait func(ctx context.Context) error
}

// New validates the configuration and creates a driver.
func New(cfg Config) (*Driver, error) {
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	d := &Driver{cfg: cfg}
	if cfg.MinRequestInterval > 0 {
		limiter := rate.NewLimiter(rate.Every(cfg.MinRequestInterval), 1)
		d.wait = limiter.Wait
	} else {
		d.wait = func(context.Context) error { return nil }
	}
	return d, nil
}

// Run performs one collection run. It returns an error only for fatal
// conditions: history load or persistence failures. Extraction failures
// degrade to absent fields in the persisted record.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	today := d.cfg.Now().Format(dateLayout)

	h, err := d.cfg.Store.Load()
	if err != nil {
		return Result{}, err
	}

	if _, exists := h.FindDate(today); exists && !d.cfg.Force {
		logger.Info("record for today already exists, skipping",
			"date", today, "path", d.cfg.Store.Path())
		return Result{Outcome: history.Skipped}, nil
	}

	groups := make(map[string]metric.MetricGroup, len(d.cfg.Groups))
	rendered := make(map[string]renderer.Content)

	for _, g := range d.cfg.Groups {
		groups[g.Name] = d.collectGroup(ctx, g, today, rendered)
	}

	rec := metric.DailyRecord{
		Date:       today,
		CapturedAt: d.cfg.Now(),
		Groups:     groups,
	}

	outcome, err := d.cfg.Store.Upsert(rec, d.cfg.Force)
	if err != nil {
		return Result{}, fmt.Errorf("failed to persist record: %w", err)
	}

	logger.Info("run complete",
		"date", today, "outcome", outcome.String(), "groups", len(groups))
	return Result{Outcome: outcome, Record: rec}, nil
}

// collectGroup renders the group's page and runs the extraction chain.
// Every failure path degrades to the all-absent group so one group can
// never abort another.
func (d *Driver) collectGroup(ctx context.Context, g metric.Group, date string, rendered map[string]renderer.Content) metric.MetricGroup {
	content, ok := rendered[g.URL]
	if !ok {
		var err error
		content, err = d.renderPage(ctx, g)
		if err != nil {
			logger.Warn("page render failed, group will be absent",
				"group", g.Name, "url", g.URL, "error", err)
			rendered[g.URL] = renderer.Content{URL: g.URL}
			return metric.MetricGroup{Note: g.Note}
		}
		rendered[g.URL] = content
	}

	if !content.HasImage() && !content.HasText() {
		return metric.MetricGroup{Note: g.Note}
	}

	d.saveArtifact(g, date, content)

	candidate := d.cfg.Chain.Extract(ctx, content, g)
	mg := metric.Normalize(candidate, g)
	if mg.Empty() {
		logger.Warn("group extraction yielded no fields", "group", g.Name)
	}
	return mg
}

// renderPage waits out the mandatory inter-request interval, then renders.
func (d *Driver) renderPage(ctx context.Context, g metric.Group) (renderer.Content, error) {
	if err := d.wait(ctx); err != nil {
		return renderer.Content{}, fmt.Errorf("request spacing interrupted: %w", err)
	}

	wait := defaultRenderWait
	if g.WaitMs > 0 {
		wait = time.Duration(g.WaitMs) * time.Millisecond
	}

	return d.cfg.Renderer.Render(ctx, g.URL, renderer.Options{
		Timeout:      d.cfg.RenderTimeout,
		WaitDuration: wait,
	})
}

// saveArtifact writes the group's screenshot for offline debugging.
// Best-effort: failures are logged, never propagated.
func (d *Driver) saveArtifact(g metric.Group, date string, content renderer.Content) {
	if d.cfg.ArtifactDir == "" || !content.HasImage() {
		return
	}
	name := fmt.Sprintf("debug_%s_%s.png", g.Name, date)
	path := filepath.Join(d.cfg.ArtifactDir, name)
	if err := os.WriteFile(path, content.Image, 0o644); err != nil {
		logger.Debug("failed to save debug screenshot", "path", path, "error", err)
		return
	}
	logger.Debug("debug screenshot saved", "path", path)
}
