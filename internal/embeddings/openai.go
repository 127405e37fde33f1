// Package embeddings's default provider: OpenAI's embeddings API, wrapped
// with the package's own LRU cache so repeat chunk content doesn't pay for
// a second API call.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"vaultmemory/internal/config"
)

// OpenAIService implements Service using OpenAI's embeddings API.
type OpenAIService struct {
	client  *openai.Client
	model   string
	dims    int
	timeout time.Duration
	cache   *EmbeddingCache
}

// NewOpenAIService creates a provider backed by cfg.APIKey/cfg.Model.
func NewOpenAIService(cfg *config.EmbeddingConfig) *OpenAIService {
	return &OpenAIService{
		client:  openai.NewClient(cfg.APIKey),
		model:   cfg.Model,
		dims:    cfg.Dimensions,
		timeout: 30 * time.Second,
		cache:   NewEmbeddingCache(10000, 24*time.Hour, cfg.Model, cfg.Dimensions),
	}
}

// Embed produces a single embedding, served from cache when possible.
func (s *OpenAIService) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("embeddings: text must not be empty")
	}
	if cached, ok := s.cache.Get(text); ok {
		return cached, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateEmbeddings(timeoutCtx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(s.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: create: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embeddings: no embedding returned")
	}

	vec := resp.Data[0].Embedding
	s.cache.Set(text, vec)
	return vec, nil
}

// EmbedBatch produces embeddings for texts, splitting out only the ones
// not already cached and merging results back into input order.
func (s *OpenAIService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("embeddings: texts must not be empty")
	}

	results := make([][]float32, len(texts))
	var uncachedTexts []string
	var uncachedIndices []int

	for i, text := range texts {
		if cached, ok := s.cache.Get(text); ok {
			results[i] = cached
			continue
		}
		uncachedTexts = append(uncachedTexts, text)
		uncachedIndices = append(uncachedIndices, i)
	}
	if len(uncachedTexts) == 0 {
		return results, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateEmbeddings(timeoutCtx, openai.EmbeddingRequest{
		Input: uncachedTexts,
		Model: openai.EmbeddingModel(s.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: create batch: %w", err)
	}
	if len(resp.Data) != len(uncachedTexts) {
		return nil, fmt.Errorf("embeddings: expected %d embeddings, got %d", len(uncachedTexts), len(resp.Data))
	}

	for i, data := range resp.Data {
		idx := uncachedIndices[i]
		results[idx] = data.Embedding
		s.cache.Set(uncachedTexts[i], data.Embedding)
	}
	return results, nil
}

// Dimensions returns the configured embedding width.
func (s *OpenAIService) Dimensions() int {
	return s.dims
}

// HealthCheck verifies the provider is reachable by embedding a short probe.
func (s *OpenAIService) HealthCheck(ctx context.Context) error {
	_, err := s.Embed(ctx, "healthcheck")
	return err
}
