package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/BaSui01/factflow/types"
)

// OpenAIProvider implements embedding against any OpenAI-compatible
// /v1/embeddings endpoint.
type OpenAIProvider struct {
	*BaseProvider
	cfg OpenAIConfig
}

// NewOpenAIProvider creates a new OpenAI-compatible embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	def := DefaultOpenAIConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxBatch == 0 {
		cfg.MaxBatch = def.MaxBatch
	}

	return &OpenAIProvider{
		BaseProvider: NewBaseProvider(BaseConfig{
			Name:       "openai-embedding",
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			MaxBatch:   cfg.MaxBatch,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}),
		cfg: cfg,
	}
}

type openAIEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed generates embeddings for the given inputs.
func (p *OpenAIProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	if len(req.Input) == 0 {
		return nil, types.NewInvalidRequestError("embedding input must not be empty")
	}
	model := ChooseModel(req.Model, p.cfg.Model, DefaultOpenAIConfig().Model)
	dims := req.Dimensions
	if dims == 0 {
		dims = p.cfg.Dimensions
	}

	headers := map[string]string{}
	if p.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + p.cfg.APIKey
	}

	respBody, err := p.DoRequest(ctx, http.MethodPost, "/v1/embeddings", openAIEmbedRequest{
		Input:      req.Input,
		Model:      model,
		Dimensions: dims,
	}, headers)
	if err != nil {
		return nil, err
	}

	var oaResp openAIEmbedResponse
	if err := json.Unmarshal(respBody, &oaResp); err != nil {
		return nil, types.NewError(types.ErrInvalidProviderPayload, "failed to decode embedding response").
			WithProvider(p.Name()).
			WithCause(err)
	}

	embeddings := make([]EmbeddingData, len(oaResp.Data))
	for i, d := range oaResp.Data {
		embeddings[i] = EmbeddingData{
			Index:     d.Index,
			Embedding: d.Embedding,
		}
	}

	if oaResp.Model == "" {
		oaResp.Model = model
	}

	return &EmbeddingResponse{
		Provider:   p.Name(),
		Model:      oaResp.Model,
		Embeddings: embeddings,
		Usage: EmbeddingUsage{
			PromptTokens: oaResp.Usage.PromptTokens,
			TotalTokens:  oaResp.Usage.TotalTokens,
		},
		CreatedAt: time.Now(),
	}, nil
}

// EmbedQuery embeds a single query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return p.BaseProvider.EmbedQuery(ctx, query, p.Embed)
}

// EmbedDocuments embeds multiple documents.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	return p.BaseProvider.EmbedDocuments(ctx, documents, p.Embed)
}

// Warmup embeds a short warmup text so the server loads its weights.
func (p *OpenAIProvider) Warmup(ctx context.Context) error {
	_, err := p.EmbedQuery(ctx, "warmup")
	return err
}
