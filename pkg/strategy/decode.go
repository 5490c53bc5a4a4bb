package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fangwatch/fangwatch/pkg/metric"
)

// stripFences removes markdown code-fence markers that models wrap around
// JSON output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// firstJSONObject returns the first balanced {...} object in s, tolerating
// surrounding prose. Braces inside JSON strings are accounted for.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// decodeCandidate parses a model response into a candidate for the group's
// fields. The response may carry code fences or prose around the JSON
// object. JSON nulls and missing keys both map to absent fields.
func decodeCandidate(response string, g metric.Group) (metric.Candidate, error) {
	text := stripFences(response)
	obj, ok := firstJSONObject(text)
	if !ok {
		return nil, fmt.Errorf("no JSON object in response: %s", truncate(response, 200))
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(obj)))
	dec.UseNumber()
	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	candidate := metric.Candidate{}
	for _, f := range g.Fields {
		v, ok := values[f.Key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case json.Number:
			candidate[f.Key] = val.String()
		case string:
			if strings.TrimSpace(val) != "" {
				candidate[f.Key] = strings.TrimSpace(val)
			}
		default:
			return nil, fmt.Errorf("field %q has non-numeric value %v", f.Key, v)
		}
	}
	return candidate, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
