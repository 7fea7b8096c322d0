package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/liliang-cn/mscp/pkg/core"
)

// OpenAIConfig configures an OpenAI-compatible embedding client.
type OpenAIConfig struct {
	// BaseURL of the API, e.g. http://localhost:8080/v1 for a llama.cpp server.
	BaseURL string
	APIKey  string
	Model   string

	// Dimensions is the vector length the model returns.
	Dimensions int

	// Options are passed to the underlying client, after BaseURL and APIKey.
	Options []option.RequestOption
}

// OpenAI embeds text through the /embeddings endpoint of an OpenAI-compatible server.
type OpenAI struct {
	client     openai.Client
	model      string
	dimensions int
}

// NewOpenAI creates an embedding client. It fails with core.ErrMissingResource
// when no endpoint is configured.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: embedding base URL is not configured", core.ErrMissingResource)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embedding model is required", core.ErrInvalidConfig)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: embedding dimensions must be positive", core.ErrInvalidConfig)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		// Local servers ignore the key but the client requires one.
		apiKey = "local"
	}

	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(apiKey),
	}
	opts = append(opts, cfg.Options...)

	return &OpenAI{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed requests one embedding.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings response has no data")
	}

	raw := resp.Data[0].Embedding
	if len(raw) != o.dimensions {
		return nil, fmt.Errorf("%w: model %s returned %d dimensions, expected %d",
			core.ErrDimensionMismatch, o.model, len(raw), o.dimensions)
	}

	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Dim returns the configured dimension.
func (o *OpenAI) Dim() int {
	return o.dimensions
}
