// Package contentgen wraps the Anthropic SDK behind a small text
// generation interface used by the pipeline stages.
package contentgen

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the generation operations used by the pipeline.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Request is our own request type for Generate.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature *float64
	// Stage labels the call for cost attribution in logs.
	Stage string
}

// Response is our own response type from Generate.
type Response struct {
	Text       string
	StopReason string
	Usage      TokenUsage
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// modelPricing holds per-million-token pricing for known models.
var modelPricing = map[string][2]float64{
	// model → {input $/MTok, output $/MTok}
	"claude-haiku-4-5-20251001":  {0.80, 4.00},
	"claude-sonnet-4-5-20250929": {3.00, 15.00},
}

// EstimateCost computes an estimated cost in USD from a TokenUsage and
// model ID. Returns 0 for unknown models.
func (u TokenUsage) EstimateCost(model string) float64 {
	pricing, ok := modelPricing[model]
	if !ok {
		return 0
	}
	inCost := (float64(u.InputTokens) / 1e6) * pricing[0]
	outCost := (float64(u.OutputTokens) / 1e6) * pricing[1]
	return inCost + outCost
}

// LogCost logs token usage and estimated cost with structured zap fields.
func (u TokenUsage) LogCost(model, stage string) {
	zap.L().Info("cost attribution",
		zap.String("model", model),
		zap.String("stage", stage),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Float64("estimated_cost_usd", u.EstimateCost(model)),
	)
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
	model  string
}

// NewClient creates a generation client backed by the SDK.
func NewClient(apiKey, model string) Client {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
		),
		model: model,
	}
}

func (c *sdkClient) Generate(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}

	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "contentgen: create message")
	}

	var text string
	for _, b := range msg.Content {
		if b.Type == "text" {
			text += b.Text
		}
	}

	usage := TokenUsage{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
	usage.LogCost(c.model, req.Stage)

	return &Response{
		Text:       text,
		StopReason: string(msg.StopReason),
		Usage:      usage,
	}, nil
}
