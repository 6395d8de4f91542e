package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"LlamaChat/internal/config"
	"LlamaChat/internal/prompt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// ErrConfigurationMissing is returned when the endpoint URL or credential was
// never configured.
var ErrConfigurationMissing = errors.New("configuration missing")

// StatusError is returned when the endpoint answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: %d %s - %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Request is one generation call against an endpoint
type Request struct {
	EndpointURL  string
	APIKey       string
	Prompt       string
	Temperature  float64
	MaxNewTokens int
}

// Client calls a hosted text-generation-inference endpoint
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram
	requests   metric.Int64Counter
	meterErr   error
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each Generate call
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTracer sets the tracer used for request spans
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) { c.tracer = tracer }
}

// WithMeter sets the meter used for request metrics. Instruments that fail
// to build are replaced with noop ones and the error is logged.
func WithMeter(meter metric.Meter) Option {
	return func(c *Client) {
		c.meterErr = nil
		h, err := meter.Float64Histogram(
			"http.client.request.duration",
			metric.WithDescription("HTTP request duration in milliseconds"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			c.meterErr = fmt.Errorf("failed to create duration histogram: %w", err)
			h = noop.Float64Histogram{}
		}
		ctr, err := meter.Int64Counter(
			"llm.generate.requests",
			metric.WithDescription("Generate calls by outcome"),
		)
		if err != nil {
			c.meterErr = errors.Join(c.meterErr, fmt.Errorf("failed to create request counter: %w", err))
			ctr = noop.Int64Counter{}
		}
		c.duration = h
		c.requests = ctr
	}
}

// NewClient creates a new Client. Without options it uses the global
// OpenTelemetry providers and slog.Default.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		timeout:    config.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("llamachat/backend")
	}
	if c.duration == nil || c.requests == nil {
		WithMeter(otel.Meter("llamachat/backend"))(c)
	}
	if c.meterErr != nil {
		c.logger.Warn("request metrics disabled", "error", c.meterErr)
	}
	return c
}

// Generate submits the prompt and returns the generated text
func (c *Client) Generate(ctx context.Context, r Request) (string, error) {
	if r.EndpointURL == "" {
		return "", fmt.Errorf("%w: %s not set", ErrConfigurationMissing, config.KeyEndpointURL)
	}
	if r.APIKey == "" {
		return "", fmt.Errorf("%w: %s not set", ErrConfigurationMissing, config.KeyAPIKey)
	}

	ctx, span := c.tracer.Start(ctx, "tgi_generate", trace.WithAttributes(
		attribute.String("llm.prompt.digest", prompt.Digest(r.Prompt)),
		attribute.Int("llm.prompt.length", len(r.Prompt)),
		attribute.Float64("llm.temperature", r.Temperature),
		attribute.Int("llm.max_new_tokens", r.MaxNewTokens),
	))
	defer span.End()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := c.do(ctx, r)
	duration := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("generate failed", "error", err, "duration_ms", duration.Milliseconds())
	} else {
		span.SetAttributes(attribute.Int("llm.completion.length", len(text)))
		c.logger.Info("generate completed", "duration_ms", duration.Milliseconds(), "completion_length", len(text))
	}

	c.duration.Record(ctx, float64(duration.Milliseconds()))
	c.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	return text, err
}

func (c *Client) do(ctx context.Context, r Request) (string, error) {
	reqBody := GenerateRequest{
		Inputs: r.Prompt,
		Parameters: GenerateParameters{
			Temperature:  r.Temperature,
			MaxNewTokens: r.MaxNewTokens,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.EndpointURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+r.APIKey)
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		var errResp ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return "", &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	// TGI answers a single prompt either as an object or as a one-element list
	var apiResp GenerateResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		var list []GenerateResponse
		if listErr := json.Unmarshal(body, &list); listErr != nil || len(list) == 0 {
			return "", fmt.Errorf("failed to unmarshal response: %w", err)
		}
		apiResp = list[0]
	}

	return apiResp.GeneratedText, nil
}
