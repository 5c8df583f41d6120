package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/jjhickman/garbanzo-bot-sub001/internal/config"
)

const (
	embeddingProviderOpenAI        = "openai"
	embeddingProviderDeterministic = "deterministic"
)

// EmbeddingResult carries the vector plus provenance so callers can tell
// whether the credential-free fallback produced it.
type EmbeddingResult struct {
	Vector       []float32
	Provider     string
	Model        string
	UsedFallback bool
}

// Embedder maps text to a fixed-length vector. Implementations never fail
// for lack of credentials: the deterministic fallback always answers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
	Dimension() int
}

type embedderClient struct {
	provider   string
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	maxChars   int
	httpClient *http.Client
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func NewEmbedder(cfg config.EmbeddingConfig) Embedder {
	client := &embedderClient{
		provider:   embeddingProviderDeterministic,
		dimension:  config.DefaultEmbeddingDimension,
		maxChars:   config.DefaultEmbeddingMaxChars,
		httpClient: &http.Client{Timeout: time.Duration(config.DefaultEmbeddingTimeoutMs) * time.Millisecond},
	}

	if provider := strings.ToLower(strings.TrimSpace(cfg.Provider)); provider != "" {
		client.provider = provider
	}
	client.baseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if client.baseURL == "" {
		client.baseURL = config.DefaultEmbeddingBaseURL
	}
	client.apiKey = strings.TrimSpace(cfg.APIKey)
	if model := strings.TrimSpace(cfg.Model); model != "" {
		client.model = model
	} else {
		client.model = config.DefaultEmbeddingModel
	}
	if cfg.Dimension > 0 {
		client.dimension = cfg.Dimension
	}
	if cfg.MaxChars > 0 {
		client.maxChars = cfg.MaxChars
	}
	if cfg.TimeoutMs > 0 {
		client.httpClient.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}

	return client
}

func (c *embedderClient) Dimension() int {
	return c.dimension
}

// Embed routes to the configured provider and falls back to the
// deterministic hash embedding when the provider is unusable or errors.
// Only the query path calls this; message ingestion never does.
func (c *embedderClient) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return EmbeddingResult{}, fmt.Errorf("embed: empty text")
	}
	if len(trimmed) > c.maxChars {
		trimmed = trimmed[:c.maxChars]
	}

	if c.provider == embeddingProviderDeterministic || c.apiKey == "" {
		return c.fallbackResult(trimmed), nil
	}

	vector, err := c.requestEmbedding(ctx, trimmed)
	if err != nil {
		log.Printf("[embedder] provider %s failed, using deterministic fallback: %v", c.provider, err)
		return c.fallbackResult(trimmed), nil
	}

	return EmbeddingResult{
		Vector:   vector,
		Provider: c.provider,
		Model:    c.model,
	}, nil
}

func (c *embedderClient) fallbackResult(text string) EmbeddingResult {
	return EmbeddingResult{
		Vector:       DeterministicEmbedding(text, c.dimension),
		Provider:     embeddingProviderDeterministic,
		Model:        "fnv-bucket",
		UsedFallback: true,
	}
}

func (c *embedderClient) requestEmbedding(ctx context.Context, text string) ([]float32, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(embeddingRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded embeddingResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Data) == 0 || len(decoded.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding data")
	}

	vector := make([]float32, len(decoded.Data[0].Embedding))
	copy(vector, decoded.Data[0].Embedding)
	return vector, nil
}

// DeterministicEmbedding hashes the text's tokens into dim buckets and
// L2-normalizes the result. No credentials, no network, stable across runs.
func DeterministicEmbedding(text string, dim int) []float32 {
	if dim <= 0 {
		dim = config.DefaultEmbeddingDimension
	}

	vector := make([]float32, dim)
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		tokens = []string{strings.ToLower(text)}
	}

	for _, token := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum32()
		bucket := int(sum % uint32(dim))
		// Alternate sign from a high hash bit so buckets do not all
		// accumulate in the same direction.
		if sum&0x80000000 != 0 {
			vector[bucket] -= 1
		} else {
			vector[bucket] += 1
		}
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vector[0] = 1
		return vector
	}

	scale := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= scale
	}
	return vector
}
