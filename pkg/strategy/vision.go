package strategy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/fangwatch/fangwatch/pkg/metric"
	"github.com/fangwatch/fangwatch/pkg/renderer"
)

// metricsToolName is the tool the model is forced to call, making its
// output a schema-shaped JSON object rather than free text.
const metricsToolName = "record_metrics"

// ClaudeVision reads the page screenshot with a vision-capable Claude model
// and returns the group's fields directly as structured output.
type ClaudeVision struct {
	client anthropic.Client
	apiKey string
	model  string
}

// NewClaudeVision creates the vision strategy. The strategy is unavailable
// when no API key is configured.
func NewClaudeVision(cfg BackendConfig) *ClaudeVision {
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	opts = append(opts, option.WithRequestTimeout(timeout))

	model := cfg.Model
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}

	return &ClaudeVision{
		client: anthropic.NewClient(opts...),
		apiKey: cfg.APIKey,
		model:  model,
	}
}

func (v *ClaudeVision) Name() string { return "claude-vision" }
func (v *ClaudeVision) Accepts(kind renderer.Kind) bool { return kind == renderer.KindImage }
func (v *ClaudeVision) Available() bool { return v.apiKey != "" }

// Extract sends the screenshot with the group instruction and a forced tool
// call describing the field schema.
func (v *ClaudeVision) Extract(ctx context.Context, content renderer.Content, g metric.Group) (metric.Candidate, error) {
	b64 := base64.StdEncoding.EncodeToString(content.Image)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(v.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64("image/png", b64),
				anthropic.NewTextBlock(buildInstruction(g)),
			),
		},
		Tools: []anthropic.ToolUnionParam{
			{
				OfTool: &anthropic.ToolParam{
					Name:        metricsToolName,
					Description: anthropic.String("Record the numeric indicators read from the page"),
					InputSchema: anthropic.ToolInputSchemaParam{
						Type:       "object",
						Properties: g.JSONSchema()["properties"],
					},
				},
			},
		},
		ToolChoice: anthropic.ToolChoiceParamOfTool(metricsToolName),
	}

	resp, err := v.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}

	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			jsonBytes, err := json.Marshal(b.Input)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal tool input: %w", err)
			}
			return decodeCandidate(string(jsonBytes), g)
		}
	}
	return nil, fmt.Errorf("no tool use block in response")
}

// buildInstruction combines the group instruction with the field schema the
// model must fill in.
func buildInstruction(g metric.Group) string {
	var sb strings.Builder
	sb.WriteString(g.Instruction)
	sb.WriteString("\n\n需要提取的字段：\n")
	for _, f := range g.Fields {
		sb.WriteString("- ")
		sb.WriteString(f.Key)
		sb.WriteString("：")
		sb.WriteString(f.Description)
		if f.Kind == metric.FieldCount {
			sb.WriteString("（整数）")
		} else {
			sb.WriteString("（浮点数，单位平方米）")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("无法读取的字段填 null，不要猜测。")
	return sb.String()
}
