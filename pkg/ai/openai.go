package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	tutorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "llteacher",
		Subsystem: "ai",
		Name:      "completion_duration_seconds",
		Help:      "Duration of tutor completion requests",
	}, []string{"model", "mode"})

	tutorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llteacher",
		Subsystem: "ai",
		Name:      "completion_failures_total",
		Help:      "Number of failed tutor completion requests",
	}, []string{"model", "mode"})
)

// OpenAIConfig defines construction options for the OpenAI chat client.
type OpenAIConfig struct {
	// BaseURL overrides the provider endpoint for OpenAI-compatible services.
	BaseURL string
	Logger  zerolog.Logger
}

// OpenAIClient implements Client against an OpenAI-compatible chat API.
type OpenAIClient struct {
	baseURL string
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// NewOpenAIClient builds a chat client. API keys arrive per request because
// each tutor configuration carries its own credential.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &OpenAIClient{
		baseURL: cfg.BaseURL,
		tracer:  otel.Tracer("github.com/llteacher/llteacher-api/pkg/ai/openai"),
		logger:  logger,
	}
}

func (c *OpenAIClient) client(apiKey string) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		config.BaseURL = c.baseURL
	}
	return openai.NewClientWithConfig(config)
}

func buildRequest(req ChatRequest) (openai.ChatCompletionRequest, error) {
	if req.APIKey == "" {
		return openai.ChatCompletionRequest{}, fmt.Errorf("api key is required")
	}
	if req.Model == "" {
		return openai.ChatCompletionRequest{}, fmt.Errorf("model is required")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, message := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    message.Role,
			Content: message.Content,
		})
	}

	return openai.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    messages,
	}, nil
}

// Complete sends the full transcript and waits for the complete reply.
func (c *OpenAIClient) Complete(parent context.Context, req ChatRequest) (ChatResult, error) {
	ctx, span := c.tracer.Start(parent, "openai.complete", trace.WithAttributes(
		attribute.String("model", req.Model),
	))
	defer span.End()

	request, err := buildRequest(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ChatResult{}, err
	}

	start := time.Now()
	resp, err := c.client(req.APIKey).CreateChatCompletion(ctx, request)
	tutorDuration.WithLabelValues(req.Model, "complete").Observe(time.Since(start).Seconds())
	if err != nil {
		tutorFailures.WithLabelValues(req.Model, "complete").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ChatResult{}, fmt.Errorf("openai complete: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from provider")
		tutorFailures.WithLabelValues(req.Model, "complete").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ChatResult{}, err
	}

	return ChatResult{
		Content:    resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// Stream opens a streaming completion and republishes tokens on the returned
// channel. The channel is closed after a Done or Err chunk; the producer
// goroutine is the only sender.
func (c *OpenAIClient) Stream(parent context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	ctx, span := c.tracer.Start(parent, "openai.stream", trace.WithAttributes(
		attribute.String("model", req.Model),
	))

	request, err := buildRequest(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}
	request.Stream = true

	start := time.Now()
	stream, err := c.client(req.APIKey).CreateChatCompletionStream(ctx, request)
	if err != nil {
		tutorFailures.WithLabelValues(req.Model, "stream").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, fmt.Errorf("openai stream: %w", err)
	}

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		defer span.End()
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				tutorDuration.WithLabelValues(req.Model, "stream").Observe(time.Since(start).Seconds())
				select {
				case chunks <- StreamChunk{Done: true}:
				case <-ctx.Done():
				}
				return
			}
			if err != nil {
				tutorFailures.WithLabelValues(req.Model, "stream").Inc()
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				select {
				case chunks <- StreamChunk{Err: fmt.Errorf("openai stream: %w", err)}:
				case <-ctx.Done():
				}
				return
			}

			if len(resp.Choices) == 0 {
				continue
			}
			token := resp.Choices[0].Delta.Content
			if token == "" {
				continue
			}

			select {
			case chunks <- StreamChunk{Token: token}:
			case <-ctx.Done():
				c.logger.Debug().Str("model", req.Model).Msg("stream consumer went away")
				return
			}
		}
	}()

	return chunks, nil
}
