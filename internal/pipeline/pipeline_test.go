package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fangwatch/fangwatch/internal/history"
	"github.com/fangwatch/fangwatch/pkg/metric"
	"github.com/fangwatch/fangwatch/pkg/renderer"
	"github.com/fangwatch/fangwatch/pkg/strategy"
)

// fakeRenderer serves canned content per URL and records render order.
type fakeRenderer struct {
	content map[string]renderer.Content
	errs    map[string]error
	renders []string
}

func (f *fakeRenderer) Render(_ context.Context, url string, _ renderer.Options) (renderer.Content, error) {
	f.renders = append(f.renders, url)
	if err, ok := f.errs[url]; ok {
		return renderer.Content{}, err
	}
	if c, ok := f.content[url]; ok {
		return c, nil
	}
	return renderer.Content{URL: url, Text: "empty page"}, nil
}

func (f *fakeRenderer) Close() error { return nil }

// stubStrategy answers every group from a fixed candidate table.
type stubStrategy struct {
	candidates map[string]metric.Candidate
	err        error
}

func (s *stubStrategy) Name() string { return "stub" }
func (s *stubStrategy) Accepts(kind renderer.Kind) bool { return kind == renderer.KindText }
func (s *stubStrategy) Available() bool { return true }

func (s *stubStrategy) Extract(_ context.Context, _ renderer.Content, g metric.Group) (metric.Candidate, error) {
	if s.err != nil {
		return nil, s.err
	}
	if c, ok := s.candidates[g.Name]; ok {
		return c, nil
	}
	return metric.Candidate{}, nil
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
}

func testGroups() []metric.Group {
	return []metric.Group{
		{
			Name: "second_hand",
			URL:  "https://example.com/old_house.html",
			Note: "昨日网签成交（T+1）",
			Fields: []metric.Field{
				{Key: "units", Kind: metric.FieldCount},
				{Key: "area", Kind: metric.FieldArea},
			},
		},
		{
			Name: "listing",
			URL:  "https://example.com/trade.html",
			Note: "二手房出售挂牌套数",
			Fields: []metric.Field{
				{Key: "units", Kind: metric.FieldCount, Aggregate: true},
			},
		},
	}
}

func newTestDriver(t *testing.T, cfg Config) *Driver {
	t.Helper()
	if cfg.Now == nil {
		cfg.Now = fixedNow
	}
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return d
}

func okStrategy() *stubStrategy {
	return &stubStrategy{candidates: map[string]metric.Candidate{
		"second_hand": {"units": "527", "area": "42244.63"},
		"listing":     {"units": "84,123"},
	}}
}

func renderedPages() map[string]renderer.Content {
	return map[string]renderer.Content{
		"https://example.com/old_house.html": {Text: "old house page"},
		"https://example.com/trade.html":     {Text: "trade page"},
	}
}

func TestDriver_CollectsAndPersists(t *testing.T) {
	store := history.NewStore(filepath.Join(t.TempDir(), "data.json"))
	rend := &fakeRenderer{content: renderedPages()}

	d := newTestDriver(t, Config{
		Store:    store,
		Renderer: rend,
		Chain:    strategy.NewChain(okStrategy()),
		Groups:   testGroups(),
	})

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Outcome != history.Inserted {
		t.Errorf("expected Inserted, got %s", res.Outcome)
	}
	if res.Record.Date != "2026-08-30" {
		t.Errorf("expected date 2026-08-30, got %s", res.Record.Date)
	}

	sh := res.Record.Groups["second_hand"]
	if sh.Units == nil || *sh.Units != 527 {
		t.Errorf("unexpected second_hand units: %v", sh.Units)
	}
	if sh.AvgArea == nil || *sh.AvgArea != 80.16 {
		t.Errorf("unexpected second_hand avg_area: %v", sh.AvgArea)
	}
	if l := res.Record.Groups["listing"]; l.Units == nil || *l.Units != 84123 {
		t.Errorf("unexpected listing units: %v", l.Units)
	}

	h, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 1 {
		t.Fatalf("expected 1 persisted record, got %d", len(h))
	}
}

func TestDriver_SkipsExistingDate(t *testing.T) {
	store := history.NewStore(filepath.Join(t.TempDir(), "data.json"))
	units := int64(1)
	if _, err := store.Upsert(metric.DailyRecord{
		Date:   "2026-08-30",
		Groups: map[string]metric.MetricGroup{"second_hand": {Units: &units}},
	}, false); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}

	rend := &fakeRenderer{content: renderedPages()}
	d := newTestDriver(t, Config{
		Store:    store,
		Renderer: rend,
		Chain:    strategy.NewChain(okStrategy()),
		Groups:   testGroups(),
	})

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Outcome != history.Skipped {
		t.Errorf("expected Skipped, got %s", res.Outcome)
	}
	if len(rend.renders) != 0 {
		t.Error("skip must not render any page")
	}

	after, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("skip must leave the store file byte-for-byte unchanged")
	}
}

func TestDriver_ForceOverwrites(t *testing.T) {
	store := history.NewStore(filepath.Join(t.TempDir(), "data.json"))
	units := int64(1)
	if _, err := store.Upsert(metric.DailyRecord{
		Date:   "2026-08-30",
		Groups: map[string]metric.MetricGroup{"stale": {Units: &units}},
	}, false); err != nil {
		t.Fatal(err)
	}

	d := newTestDriver(t, Config{
		Store:    store,
		Renderer: &fakeRenderer{content: renderedPages()},
		Chain:    strategy.NewChain(okStrategy()),
		Groups:   testGroups(),
		Force:    true,
	})

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Outcome != history.Replaced {
		t.Errorf("expected Replaced, got %s", res.Outcome)
	}

	h, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 1 {
		t.Fatalf("expected 1 record, got %d", len(h))
	}
	if _, ok := h[0].Groups["stale"]; ok {
		t.Error("force overwrite must replace the record wholesale")
	}
}

func TestDriver_GroupFailureIsolation(t *testing.T) {
	store := history.NewStore(filepath.Join(t.TempDir(), "data.json"))
	rend := &fakeRenderer{
		content: renderedPages(),
		errs: map[string]error{
			"https://example.com/trade.html": errors.New("navigation timeout"),
		},
	}

	d := newTestDriver(t, Config{
		Store:    store,
		Renderer: rend,
		Chain:    strategy.NewChain(okStrategy()),
		Groups:   testGroups(),
	})

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("one group's render failure must not fail the run: %v", err)
	}

	sh := res.Record.Groups["second_hand"]
	if sh.Units == nil || *sh.Units != 527 {
		t.Errorf("healthy group must still extract, got %v", sh.Units)
	}

	l := res.Record.Groups["listing"]
	if !l.Empty() {
		t.Errorf("failed group must be all-absent, got %+v", l)
	}
	if l.Note != "二手房出售挂牌套数" {
		t.Errorf("failed group must keep its note, got %q", l.Note)
	}

	h, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 1 {
		t.Error("partial record must still be persisted")
	}
}

func TestDriver_AllStrategiesFailStillPersists(t *testing.T) {
	store := history.NewStore(filepath.Join(t.TempDir(), "data.json"))

	d := newTestDriver(t, Config{
		Store:    store,
		Renderer: &fakeRenderer{content: renderedPages()},
		Chain:    strategy.NewChain(&stubStrategy{err: errors.New("auth failed")}),
		Groups:   testGroups(),
	})

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Outcome != history.Inserted {
		t.Errorf("expected Inserted, got %s", res.Outcome)
	}
	for name, g := range res.Record.Groups {
		if !g.Empty() {
			t.Errorf("group %s should be all-absent, got %+v", name, g)
		}
		if g.Note == "" {
			t.Errorf("group %s should keep its note", name)
		}
	}
}

func TestDriver_SharedURLRenderedOnce(t *testing.T) {
	groups := testGroups()
	groups[0].URL = groups[1].URL

	rend := &fakeRenderer{content: renderedPages()}
	d := newTestDriver(t, Config{
		Store:    history.NewStore(filepath.Join(t.TempDir(), "data.json")),
		Renderer: rend,
		Chain:    strategy.NewChain(okStrategy()),
		Groups:   groups,
	})

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(rend.renders) != 1 {
		t.Errorf("expected page shared by two groups to render once, got %d", len(rend.renders))
	}
}

func TestDriver_WaitsBeforeEachRender(t *testing.T) {
	rend := &fakeRenderer{content: renderedPages()}
	d := newTestDriver(t, Config{
		Store:    history.NewStore(filepath.Join(t.TempDir(), "data.json")),
		Renderer: rend,
		Chain:    strategy.NewChain(okStrategy()),
		Groups:   testGroups(),
	})

	waits := 0
	d.wait = func(context.Context) error {
		waits++
		return nil
	}

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if waits != 2 {
		t.Errorf("expected one wait per distinct page render, got %d", waits)
	}
}

func TestDriver_SavesDebugArtifacts(t *testing.T) {
	dir := t.TempDir()
	pages := renderedPages()
	pages["https://example.com/old_house.html"] = renderer.Content{
		Text:  "old house page",
		Image: []byte("png bytes"),
	}

	d := newTestDriver(t, Config{
		Store:       history.NewStore(filepath.Join(dir, "data.json")),
		Renderer:    &fakeRenderer{content: pages},
		Chain:       strategy.NewChain(okStrategy()),
		Groups:      testGroups(),
		ArtifactDir: dir,
	})

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	artifact := filepath.Join(dir, "debug_second_hand_2026-08-30.png")
	if _, err := os.Stat(artifact); err != nil {
		t.Errorf("expected debug screenshot at %s: %v", artifact, err)
	}
}

func TestNew_ValidatesConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty config")
	}

	if _, err := New(Config{
		Store:    history.NewStore("x.json"),
		Renderer: &fakeRenderer{},
		Chain:    strategy.NewChain(okStrategy()),
	}); err == nil {
		t.Error("expected error for missing groups")
	}
}
