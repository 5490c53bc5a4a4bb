package strategy

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/fangwatch/fangwatch/internal/logger"
	"github.com/fangwatch/fangwatch/pkg/metric"
	"github.com/fangwatch/fangwatch/pkg/renderer"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.0-flash"
)

// GeminiOCR transcribes a page screenshot with the Gemini generateContent
// REST API and parses the transcription with the group's field patterns.
// Unlike the vision strategy it asks only for verbatim text, keeping the
// numeric interpretation on our side.
type GeminiOCR struct {
	client *resty.Client
	apiKey string
	model  string
	parser *Regex
}

// NewGeminiOCR creates the OCR strategy. The strategy is unavailable when
// no API key is configured.
func NewGeminiOCR(cfg BackendConfig) *GeminiOCR {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &GeminiOCR{
		client: client,
		apiKey: cfg.APIKey,
		model:  model,
		parser: NewRegex(),
	}
}

func (g *GeminiOCR) Name() string { return "gemini-ocr" }
func (g *GeminiOCR) Accepts(kind renderer.Kind) bool { return kind == renderer.KindImage }
func (g *GeminiOCR) Available() bool { return g.apiKey != "" }

// Extract sends the screenshot for transcription and parses the result.
func (g *GeminiOCR) Extract(ctx context.Context, content renderer.Content, grp metric.Group) (metric.Candidate, error) {
	text, err := g.transcribe(ctx, content.Image)
	if err != nil {
		return nil, err
	}

	logger.Debug("OCR transcription received",
		"group", grp.Name, "text_size", len(text))

	return g.parser.parseText(text, grp), nil
}

const transcribePrompt = "请逐行转录这张网页截图中所有可见的文字和数字，" +
	"保留原有的标签和数值的对应关系（例如\"昨日二手房成交套数：527套\"）。" +
	"只输出转录文本，不要解释。"

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenConfig struct {
	Temperature float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// transcribe performs one generateContent call with the screenshot inlined.
func (g *GeminiOCR) transcribe(ctx context.Context, image []byte) (string, error) {
	req := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: transcribePrompt},
				{InlineData: &geminiInlineData{
					MimeType: "image/png",
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
		GenerationConfig: geminiGenConfig{Temperature: 0},
	}

	var result geminiResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("key", g.apiKey).
		SetBody(req).
		SetResult(&result).
		SetError(&result).
		Post(fmt.Sprintf("/models/%s:generateContent", g.model))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if resp.IsError() {
		if result.Error != nil {
			return "", fmt.Errorf("gemini API error %d: %s", result.Error.Code, result.Error.Message)
		}
		return "", fmt.Errorf("gemini API error: status %d", resp.StatusCode())
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini response has no candidates")
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}
