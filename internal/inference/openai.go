package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"golang.org/x/time/rate"
)

const openAIDefaultModel = openai.ChatModelGPT4o

// OpenAIConfig holds configuration for the OpenAI-backed Service.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string // Optional (tests, proxies)
	Timeout     time.Duration
	RPS         float64 // Requests per second
	MaxAttempts int     // Transport-level retry attempts
	Logger      *slog.Logger
}

// OpenAIService implements Service using the official OpenAI SDK with
// vision inputs and strict structured output.
type OpenAIService struct {
	client      openai.Client
	model       string
	timeout     time.Duration
	maxAttempts int
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewOpenAIService creates the inference client.
func NewOpenAIService(cfg OpenAIConfig) *OpenAIService {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 1.0
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIService{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RPS), 1),
		logger:      logger.With("component", "inference"),
	}
}

// Infer sends images plus prompt under a strict json_schema response
// format and validates the reply locally before returning it.
func (s *OpenAIService) Infer(ctx context.Context, req Request) (json.RawMessage, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	var schemaAny any
	if err := json.Unmarshal(req.Schema, &schemaAny); err != nil {
		return nil, fmt.Errorf("failed to parse request schema %s: %w", req.SchemaName, err)
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(req.Prompt),
	}
	for _, img := range req.Images {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
		}))
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.Instructions),
			openai.UserMessage(parts),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.SchemaName,
					Schema: schemaAny,
					Strict: openai.Bool(true),
				},
			},
		},
	}

	var content string
	err := retry.Do(
		func() error {
			callCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			completion, err := s.client.Chat.Completions.New(callCtx, params)
			if err != nil {
				return err
			}
			if len(completion.Choices) == 0 {
				return fmt.Errorf("empty completion for %s", req.SchemaName)
			}
			content = completion.Choices[0].Message.Content
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.maxAttempts)),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inference call %s failed: %w", req.SchemaName, err)
	}

	payload := json.RawMessage(content)
	if err := ValidateAgainstSchema(req.SchemaName, req.Schema, payload); err != nil {
		s.logger.Warn("inference response rejected", "schema", req.SchemaName, "error", err)
		return nil, err
	}
	return payload, nil
}
