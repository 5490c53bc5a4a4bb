package strategy

import (
	"testing"

	"github.com/fangwatch/fangwatch/pkg/metric"
)

func decodeGroup() metric.Group {
	return metric.Group{
		Name: "test",
		Fields: []metric.Field{
			{Key: "units", Kind: metric.FieldCount},
			{Key: "area", Kind: metric.FieldArea},
		},
	}
}

func TestDecodeCandidate_PlainObject(t *testing.T) {
	c, err := decodeCandidate(`{"units": 527, "area": 42244.63}`, decodeGroup())
	if err != nil {
		t.Fatalf("decodeCandidate() error: %v", err)
	}
	if c["units"] != "527" {
		t.Errorf("expected units 527, got %q", c["units"])
	}
	if c["area"] != "42244.63" {
		t.Errorf("expected area 42244.63, got %q", c["area"])
	}
}

func TestDecodeCandidate_CodeFences(t *testing.T) {
	response := "```json\n{\"units\": 527, \"area\": null}\n```"

	c, err := decodeCandidate(response, decodeGroup())
	if err != nil {
		t.Fatalf("decodeCandidate() error: %v", err)
	}
	if c["units"] != "527" {
		t.Errorf("expected units 527, got %q", c["units"])
	}
	if c.Has("area") {
		t.Error("null area must be absent, not present")
	}
}

func TestDecodeCandidate_SurroundingProse(t *testing.T) {
	response := `根据截图，数据如下：{"units": 12, "area": 980.5} 希望对你有帮助。`

	c, err := decodeCandidate(response, decodeGroup())
	if err != nil {
		t.Fatalf("decodeCandidate() error: %v", err)
	}
	if c["units"] != "12" || c["area"] != "980.5" {
		t.Errorf("unexpected candidate: %v", c)
	}
}

func TestDecodeCandidate_BracesInsideStrings(t *testing.T) {
	response := `{"units": 3, "note": "see {appendix}", "area": 100}`

	c, err := decodeCandidate(response, decodeGroup())
	if err != nil {
		t.Fatalf("decodeCandidate() error: %v", err)
	}
	if c["units"] != "3" || c["area"] != "100" {
		t.Errorf("unexpected candidate: %v", c)
	}
}

func TestDecodeCandidate_StringNumbers(t *testing.T) {
	c, err := decodeCandidate(`{"units": "527", "area": "4.22万"}`, decodeGroup())
	if err != nil {
		t.Fatalf("decodeCandidate() error: %v", err)
	}
	if c["units"] != "527" {
		t.Errorf("expected units 527, got %q", c["units"])
	}
	if c["area"] != "4.22万" {
		t.Errorf("expected raw area preserved, got %q", c["area"])
	}
}

func TestDecodeCandidate_MissingKeysAbsent(t *testing.T) {
	c, err := decodeCandidate(`{"units": 5}`, decodeGroup())
	if err != nil {
		t.Fatalf("decodeCandidate() error: %v", err)
	}
	if c.Has("area") {
		t.Error("missing key must stay absent")
	}
}

func TestDecodeCandidate_NoObject(t *testing.T) {
	if _, err := decodeCandidate("sorry, I cannot read the image", decodeGroup()); err == nil {
		t.Error("expected error for response without a JSON object")
	}
}

func TestDecodeCandidate_MalformedJSON(t *testing.T) {
	if _, err := decodeCandidate(`{"units": }`, decodeGroup()); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestDecodeCandidate_NonNumericValue(t *testing.T) {
	if _, err := decodeCandidate(`{"units": true}`, decodeGroup()); err == nil {
		t.Error("expected error for boolean field value")
	}
}

func TestStripFences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{`{"a":1}`, `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tc := range cases {
		if got := stripFences(tc.in); got != tc.want {
			t.Errorf("stripFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFirstJSONObject_Unbalanced(t *testing.T) {
	if _, ok := firstJSONObject(`{"a": 1`); ok {
		t.Error("expected no object for unbalanced braces")
	}
	if _, ok := firstJSONObject("no braces here"); ok {
		t.Error("expected no object without braces")
	}
}
