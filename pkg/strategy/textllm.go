package strategy

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/fangwatch/fangwatch/pkg/metric"
	"github.com/fangwatch/fangwatch/pkg/renderer"
)

const textSystemPrompt = "你是一个数据提取助手。你会收到一个网页的可见文本，" +
	"请严格按照要求提取数字并以JSON对象返回，不要输出任何其他内容。"

// OpenAIText extracts the group's fields from the rendered page text with a
// text-only chat model, constrained to the field schema via the JSON-schema
// response format.
type OpenAIText struct {
	client openai.Client
	apiKey string
	model  string
}

// NewOpenAIText creates the text-model strategy. The strategy is
// unavailable when no API key is configured.
func NewOpenAIText(cfg BackendConfig) *OpenAIText {
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
		model = string(openai.ChatModelGPT4oMini)
	}

	return &OpenAIText{
		client: openai.NewClient(opts...),
		apiKey: cfg.APIKey,
		model:  model,
	}
}

func (t *OpenAIText) Name() string { return "openai-text" }
func (t *OpenAIText) Accepts(kind renderer.Kind) bool { return kind == renderer.KindText }
func (t *OpenAIText) Available() bool { return t.apiKey != "" }

// Extract sends the page text with the group instruction and decodes the
// structured response.
func (t *OpenAIText) Extract(ctx context.Context, content renderer.Content, g metric.Group) (metric.Candidate, error) {
	prompt := buildInstruction(g) + "\n\n页面文本：\n" + content.Text

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(t.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(textSystemPrompt),
			openai.UserMessage(prompt),
		},
		MaxTokens:   openai.Int(1024),
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "daily_metrics",
					Schema: g.JSONSchema(),
				},
			},
		},
	}

	resp, err := t.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return decodeCandidate(resp.Choices[0].Message.Content, g)
}
