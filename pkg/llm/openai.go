package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sony/gobreaker"

	"github.com/liliang-cn/mscp/pkg/core"
)

// OpenAIConfig configures an OpenAI-compatible completion client.
type OpenAIConfig struct {
	// BaseURL of the API, e.g. http://localhost:8080/v1 for a llama.cpp server.
	BaseURL string
	APIKey  string
	Model   string

	Breaker BreakerConfig

	// Options are passed to the underlying client, after BaseURL and APIKey.
	Options []option.RequestOption

	Logger core.Logger
}

// OpenAI streams raw-prompt completions from the /completions endpoint of an
// OpenAI-compatible server. Calls pass through a two-step circuit breaker.
type OpenAI struct {
	client  openai.Client
	model   string
	breaker *gobreaker.TwoStepCircuitBreaker
	logger  core.Logger
}

var _ Generator = (*OpenAI)(nil)

// NewOpenAI creates a completion client. It fails with core.ErrMissingResource
// when no endpoint is configured.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: inference base URL is not configured", core.ErrMissingResource)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: inference model is required", core.ErrInvalidConfig)
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = DefaultBreakerConfig("inference")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = core.NopLogger()
	}
	logger = logger.With("component", "llm", "model", cfg.Model)

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "local"
	}
	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(apiKey),
	}
	opts = append(opts, cfg.Options...)

	return &OpenAI{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		breaker: newBreaker(cfg.Breaker, logger),
		logger:  logger,
	}, nil
}

// Generate streams completion text for prompt.
func (o *OpenAI) Generate(ctx context.Context, prompt string, opts Options) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		done, err := o.breaker.Allow()
		if err != nil {
			yield("", inferenceError(err))
			return
		}

		params := openai.CompletionNewParams{
			Model:  openai.CompletionNewParamsModel(o.model),
			Prompt: openai.CompletionNewParamsPromptUnion{OfString: openai.String(prompt)},
		}
		if opts.MaxTokens > 0 {
			params.MaxTokens = openai.Int(int64(opts.MaxTokens))
		}
		params.Temperature = openai.Float(opts.Temperature)
		if len(opts.Stop) > 0 {
			params.Stop = openai.CompletionNewParamsStopUnion{OfStringArray: opts.Stop}
		}

		stream := o.client.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		tokens := 0
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Text == "" {
				continue
			}
			tokens++
			if !yield(chunk.Choices[0].Text, nil) {
				done(true)
				return
			}
		}

		if err := stream.Err(); err != nil {
			// A caller cancelling is not a server failure.
			done(errors.Is(err, context.Canceled))
			o.logger.Error("completion stream failed", "error", err, "tokens", tokens)
			yield("", inferenceError(err))
			return
		}

		done(true)
		o.logger.Debug("completion finished", "tokens", tokens)
	}
}

// State returns the circuit breaker state.
func (o *OpenAI) State() gobreaker.State {
	return o.breaker.State()
}

func inferenceError(err error) error {
	return fmt.Errorf("%w: %w", core.ErrInferenceFailed, err)
}
