package metric

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FieldKind determines how a raw value is normalized.
type FieldKind string

const (
	// FieldCount is a non-negative whole number of units.
	FieldCount FieldKind = "count"
	// FieldArea is a floor area in square meters.
	FieldArea FieldKind = "area"
)

// Field describes one extractable value within a group.
type Field struct {
	Key         string    `json:"key" yaml:"key"`
	Kind        FieldKind `json:"kind" yaml:"kind"`
	Description string    `json:"description" yaml:"description"`

	// Patterns are label regexes tried in order by text-based strategies.
	// The first capture group is the value; an optional second group
	// captures a 万 unit marker adjacent to it.
	Patterns []string `json:"patterns,omitempty" yaml:"patterns,omitempty"`

	// MinPlausible is the smallest credible canonical value for this field.
	// Area values below it are assumed to be expressed in 万 (ten-thousand)
	// units and multiplied by 10000. Magnitude alone is a weak signal; see
	// Normalize for the exact rule. Zero disables the heuristic.
	MinPlausible float64 `json:"min_plausible,omitempty" yaml:"min_plausible,omitempty"`

	// Aggregate marks city-wide total fields. When no labelled pattern
	// matches, text strategies may fall back to the largest unit-suffixed
	// number on the page for aggregate fields.
	Aggregate bool `json:"aggregate,omitempty" yaml:"aggregate,omitempty"`
}

// Group describes one logical measurement: the page it lives on, the
// fields to extract, and the instruction given to model-based strategies.
type Group struct {
	Name        string  `json:"name" yaml:"name"`
	URL         string  `json:"url" yaml:"url"`
	Instruction string  `json:"instruction" yaml:"instruction"`
	Note        string  `json:"note" yaml:"note"`
	WaitMs      int     `json:"wait_ms,omitempty" yaml:"wait_ms,omitempty"`
	Fields      []Field `json:"fields" yaml:"fields"`
}

// JSONSchema returns the group's field schema as a JSON Schema object,
// suitable for tool-based or response-format structured output.
func (g Group) JSONSchema() map[string]any {
	properties := make(map[string]any, len(g.Fields))
	for _, f := range g.Fields {
		typ := "number"
		if f.Kind == FieldCount {
			typ = "integer"
		}
		properties[f.Key] = map[string]any{
			"type":        []string{typ, "null"},
			"description": f.Description,
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
	}
}

// GroupsFromFile loads group definitions from a JSON or YAML file,
// replacing the built-in defaults.
func GroupsFromFile(path string) ([]Group, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-specified config file
	if err != nil {
		return nil, fmt.Errorf("failed to read groups file: %w", err)
	}

	var groups []Group
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &groups); err != nil {
			return nil, fmt.Errorf("failed to parse JSON groups: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &groups); err != nil {
			return nil, fmt.Errorf("failed to parse YAML groups: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported groups file format: %s", ext)
	}

	for _, g := range groups {
		if g.Name == "" || g.URL == "" {
			return nil, fmt.Errorf("group definition missing name or url")
		}
		if len(g.Fields) == 0 {
			return nil, fmt.Errorf("group %q has no fields", g.Name)
		}
	}
	return groups, nil
}

// DefaultGroups returns the built-in fangdi.com.cn group definitions:
// secondary-market transactions, new-build transactions, and sale listing
// inventory. The listing ranking shares the trade-statistics page with the
// new-build figures, so both declare the same URL and the page is rendered
// once per run.
func DefaultGroups() []Group {
	return []Group{
		{
			Name: "second_hand",
			URL:  "https://www.fangdi.com.cn/old_house/old_house.html",
			Instruction: "请仔细阅读上海网上房地产（fangdi.com.cn）二手房页面。" +
				"找到页面中\"昨日成交量\"区域的数字，提取昨日二手房成交套数（整数，例如527）" +
				"和昨日二手房成交面积（浮点数，单位平方米，例如42244.63）。" +
				"如果数据无法读取，对应字段填 null。",
			Note: "昨日网签成交（T+1）",
			Fields: []Field{
				{
					Key:         "units",
					Kind:        FieldCount,
					Description: "昨日二手房成交套数",
					Patterns: []string{
						`昨日二手房成交套数[：:]\s*([0-9,]+)\s*套?`,
						`昨日成交[：:]?\s*([0-9,]+)\s*套`,
						`成交套数[：:]\s*([0-9,]+)`,
					},
				},
				{
					Key:          "area",
					Kind:         FieldArea,
					Description:  "昨日二手房成交面积（平方米）",
					MinPlausible: 1000,
					Patterns: []string{
						`昨日二手房成交面积[：:]\s*([0-9,]+(?:\.[0-9]+)?)\s*(万?)(?:平方米|㎡)?`,
						`成交面积[：:]\s*([0-9,]+(?:\.[0-9]+)?)\s*(万?)(?:平方米|㎡)?`,
					},
				},
			},
		},
		{
			Name: "new_house",
			URL:  "https://www.fangdi.com.cn/trade/trade.html",
			Instruction: "请仔细阅读上海网上房地产（fangdi.com.cn）交易统计页面。" +
				"找到\"一手房各区成交统计\"或\"今日成交\"区域，汇总所有区域（内环、中环、外环、郊环）" +
				"的住宅类今日成交总套数（整数）和总面积（浮点数，单位平方米）。" +
				"面积可能显示为万平方米，请换算为平方米（× 10000）。" +
				"如果数据无法读取或页面显示为0，照实返回；无法确定填 null。",
			Note: "今日成交（当日累计）",
			Fields: []Field{
				{
					Key:         "units",
					Kind:        FieldCount,
					Description: "今日一手房住宅成交总套数（全市汇总）",
					Patterns: []string{
						`今日(?:一手房)?(?:住宅)?成交(?:总)?套数[：:]\s*([0-9,]+)\s*套?`,
						`今日成交[：:]?\s*([0-9,]+)\s*套`,
					},
				},
				{
					Key:          "area",
					Kind:         FieldArea,
					Description:  "今日一手房住宅成交总面积（平方米）",
					MinPlausible: 1000,
					Patterns: []string{
						`今日(?:一手房)?(?:住宅)?成交(?:总)?面积[：:]\s*([0-9,]+(?:\.[0-9]+)?)\s*(万?)(?:平方米|㎡)?`,
						`成交面积[：:]\s*([0-9,]+(?:\.[0-9]+)?)\s*(万?)(?:平方米|㎡)?`,
					},
				},
			},
		},
		{
			Name: "listing",
			URL:  "https://www.fangdi.com.cn/trade/trade.html",
			Instruction: "请仔细阅读上海网上房地产（fangdi.com.cn）交易统计页面。" +
				"找到\"各区二手房出售挂牌排行\"区域，将所有区域的挂牌套数加总，" +
				"得到全市二手房出售挂牌总套数（整数）。如果有\"合计\"行，直接取合计数字。" +
				"如果数据无法读取，填 null。",
			Note: "二手房出售挂牌套数",
			Fields: []Field{
				{
					Key:         "units",
					Kind:        FieldCount,
					Description: "全市二手房出售挂牌总套数",
					Aggregate:   true,
					Patterns: []string{
						`挂牌(?:总)?套数[：:]?\s*([0-9,]+)\s*套?`,
						`合计[：:]?\s*([0-9,]+)\s*套`,
					},
				},
			},
		},
	}
}
