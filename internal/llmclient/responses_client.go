// internal/llmclient/responses_client.go
package llmclient

import (
	"context"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/autopilot/internal/config"
)

// TurnRecorder observes the outcome of each service call.
type TurnRecorder interface {
	RecordTurn(kind, outcome string)
}

// ResponsesClient implements Service on top of the OpenAI Responses API.
type ResponsesClient struct {
	client   openai.Client
	cfg      config.ReasonerConfig
	limiter  *rate.Limiter
	logger   *zap.Logger
	recorder TurnRecorder
}

// ClientOption customizes a ResponsesClient.
type ClientOption func(*ResponsesClient)

// WithTurnRecorder reports every call outcome to r.
func WithTurnRecorder(r TurnRecorder) ClientOption {
	return func(c *ResponsesClient) { c.recorder = r }
}

// WithRequestOptions appends raw openai-go request options, e.g. a custom
// HTTP client.
func WithRequestOptions(opts ...option.RequestOption) ClientOption {
	return func(c *ResponsesClient) {
		c.client = openai.NewClient(append(c.baseOptions(), opts...)...)
	}
}

// -- Request payloads (internal to this file) --

type responsesRequest struct {
	Model              string     `json:"model"`
	Input              []any      `json:"input"`
	Tools              []wireTool `json:"tools,omitempty"`
	PreviousResponseID string     `json:"previous_response_id,omitempty"`
	Truncation         string     `json:"truncation"`
}

// MarshalJSON routes the payload through json-iterator.
func (r responsesRequest) MarshalJSON() ([]byte, error) {
	type plain responsesRequest
	return json.Marshal(plain(r))
}

type wireTool struct {
	Type          string `json:"type"`
	DisplayWidth  int    `json:"display_width"`
	DisplayHeight int    `json:"display_height"`
	Environment   string `json:"environment"`
}

type wireUserMessage struct {
	Role    string          `json:"role"`
	Content []wireInputText `json:"content"`
}

type wireInputText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireCallOutput struct {
	Type                     string         `json:"type"`
	CallID                   string         `json:"call_id"`
	Output                   wireScreenshot `json:"output"`
	AcknowledgedSafetyChecks []SafetyCheck  `json:"acknowledged_safety_checks"`
}

type wireScreenshot struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url"`
}

// NewResponsesClient validates cfg and builds the client.
func NewResponsesClient(cfg config.ReasonerConfig, logger *zap.Logger, opts ...ClientOption) (*ResponsesClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("reasoner API key is not set (OPENAI_API_KEY)")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("reasoner model is not set")
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	c := &ResponsesClient{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("responses_client").With(zap.String("model", cfg.Model)),
	}
	c.client = openai.NewClient(c.baseOptions()...)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *ResponsesClient) baseOptions() []option.RequestOption {
	opts := []option.RequestOption{
		option.WithAPIKey(c.cfg.APIKey),
		option.WithMaxRetries(c.cfg.MaxRetries),
	}
	if c.cfg.BaseURL != "" {
		base := c.cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	if c.cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(c.cfg.RequestTimeout))
	}
	return opts
}

// Turn implements Service.
func (c *ResponsesClient) Turn(ctx context.Context, in TurnInput, previousID string) (Output, error) {
	content := []wireInputText{
		{Type: "input_text", Text: in.Instructions},
		{Type: "input_text", Text: "current_url=" + in.CurrentURL},
	}
	if in.Extra != "" {
		content = append(content, wireInputText{Type: "input_text", Text: in.Extra})
	}

	req := c.newRequest(previousID)
	req.Input = []any{wireUserMessage{Role: "user", Content: content}}
	return c.send(ctx, "turn", req)
}

// SendObservation implements Service.
func (c *ResponsesClient) SendObservation(ctx context.Context, reply ObservationReply, previousID string) (Output, error) {
	checks := reply.AcknowledgedSafetyChecks
	if checks == nil {
		checks = []SafetyCheck{}
	}

	req := c.newRequest(previousID)
	req.Input = []any{wireCallOutput{
		Type:   "computer_call_output",
		CallID: reply.CallID,
		Output: wireScreenshot{
			Type:     "computer_screenshot",
			ImageURL: "data:image/png;base64," + reply.ImageBase64,
		},
		AcknowledgedSafetyChecks: checks,
	}}
	return c.send(ctx, "observation", req)
}

func (c *ResponsesClient) newRequest(previousID string) responsesRequest {
	req := responsesRequest{
		Model:              c.cfg.Model,
		PreviousResponseID: previousID,
		Truncation:         "auto",
	}
	if strings.Contains(c.cfg.Model, "computer-use") {
		env := c.cfg.Environment
		if env == "" {
			env = "browser"
		}
		req.Tools = []wireTool{{
			Type:          "computer_use_preview",
			DisplayWidth:  c.cfg.DisplayWidth,
			DisplayHeight: c.cfg.DisplayHeight,
			Environment:   env,
		}}
	}
	return req
}

func (c *ResponsesClient) send(ctx context.Context, kind string, req responsesRequest) (Output, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		c.record(kind, "throttled")
		return Output{}, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	c.logger.Debug("Sending request to reasoning service.",
		zap.String("kind", kind),
		zap.Bool("continues_thread", req.PreviousResponseID != ""))

	var body []byte
	if err := c.client.Post(ctx, "responses", req, &body); err != nil {
		c.record(kind, "transport_error")
		return Output{}, fmt.Errorf("responses request failed: %w", err)
	}

	out, err := DecodeResponse(body)
	if err != nil {
		c.record(kind, "decode_error")
		return Output{}, err
	}
	c.record(kind, string(out.Kind))
	c.logger.Debug("Received reasoning output.",
		zap.String("response_id", out.ResponseID),
		zap.String("output", string(out.Kind)))
	return out, nil
}

func (c *ResponsesClient) record(kind, outcome string) {
	if c.recorder != nil {
		c.recorder.RecordTurn(kind, outcome)
	}
}
