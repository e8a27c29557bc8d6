// Package ollama provides a driven.EmbeddingProvider backed by a local
// Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
	"github.com/custodia-labs/sercha-cli/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-cli/internal/logger"
)

var _ driven.EmbeddingProvider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultTimeout = 30 * time.Second

	maxRetries       = 3
	initialBackoff   = 100 * time.Millisecond
	maxBackoff       = 5 * time.Second
	breakerThreshold = 5
	breakerTimeout   = 20 * time.Second

	// DefaultRequestsPerSecond caps outgoing calls to the local Ollama
	// daemon so a large encode batch cannot starve it.
	DefaultRequestsPerSecond = 20.0
	DefaultBurst             = 5
)

// Config holds the connection settings for the Ollama provider. Model and
// device selection happen per Load call, not here.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Timeout bounds each individual HTTP request.
	Timeout time.Duration

	// RequestsPerSecond and Burst bound how fast Encode issues calls to
	// Ollama (default: DefaultRequestsPerSecond / DefaultBurst).
	RequestsPerSecond float64
	Burst             int
}

// handle is the EmbedderHandle materialized by Load for one (modelID,
// device) pair.
type handle struct {
	modelID string
	device  string
	dim     int
}

func (h *handle) Dim() int        { return h.dim }
func (h *handle) ModelID() string { return h.modelID }

// Provider implements driven.EmbeddingProvider against a local Ollama
// instance, wrapping each request in a circuit breaker and exponential
// backoff so a transiently unreachable daemon does not fail an entire
// indexing run outright.
type Provider struct {
	client  *http.Client
	baseURL string

	mu      sync.Mutex
	handles map[string]*handle
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// New creates an Ollama-backed embedding provider.
func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Burst == 0 {
		cfg.Burst = DefaultBurst
	}

	settings := gobreaker.Settings{
		Name:        "ollama-embedding",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("ollama: circuit breaker %s transitioned %s -> %s", name, from, to)
		},
	}

	return &Provider{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		handles: make(map[string]*handle),
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

// handleKey identifies a cached handle; device is part of the identity
// because the same model on CPU vs GPU can differ in latency and
// availability, even though the embedding dimension is the same.
func handleKey(modelID, device string) string {
	return modelID + "@" + device
}

// Load materializes a handle for (modelID, device), probing Ollama once to
// learn the model's embedding dimension. Subsequent calls for the same pair
// return the cached handle without contacting the server again.
func (p *Provider) Load(ctx context.Context, modelID, device string) (driven.EmbedderHandle, error) {
	key := handleKey(modelID, device)

	p.mu.Lock()
	if h, ok := p.handles[key]; ok {
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Unlock()

	vecs, err := p.encodeBatch(ctx, modelID, []string{"dimension probe"})
	if err != nil {
		return nil, fmt.Errorf("%w: loading model %s: %v", domain.ErrModelUnavailable, modelID, err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%w: model %s returned an empty embedding", domain.ErrModelUnavailable, modelID)
	}

	h := &handle{modelID: modelID, device: device, dim: len(vecs[0])}

	p.mu.Lock()
	p.handles[key] = h
	p.mu.Unlock()

	return h, nil
}

// Encode returns one vector per text, batching internally by batchSize.
func (p *Provider) Encode(ctx context.Context, eh driven.EmbedderHandle, texts []string, batchSize int) ([][]float32, error) {
	h, ok := eh.(*handle)
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized embedder handle", domain.ErrEncodeFailed)
	}
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	if batchSize <= 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		vecs, err := p.encodeBatch(ctx, h.modelID, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrEncodeFailed, err)
		}
		for _, v := range vecs {
			if len(v) != h.dim {
				return nil, fmt.Errorf("%w: model %s returned dimension %d, expected %d", domain.ErrEncodeFailed, h.modelID, len(v), h.dim)
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Close releases the provider's HTTP transport. Ollama itself is a
// separate process; there is nothing else to tear down.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// encodeBatch embeds texts one at a time (Ollama has no native batch
// embedding endpoint), routing every call through the circuit breaker and
// retrying transient failures with exponential backoff.
func (p *Provider) encodeBatch(ctx context.Context, modelID string, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := p.encodeOne(ctx, modelID, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d of %d: %w", i+1, len(texts), err)
		}
		vecs[i] = v
	}
	return vecs, nil
}

func (p *Provider) encodeOne(ctx context.Context, modelID, text string) ([]float32, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.embedWithRetry(ctx, modelID, text)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

func (p *Provider) embedWithRetry(ctx context.Context, modelID, text string) ([]float32, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialBackoff
	b.MaxInterval = maxBackoff
	bounded := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)

	var result []float32
	err := backoff.Retry(func() error {
		v, err := p.embed(ctx, modelID, text)
		if err != nil {
			return err
		}
		result = v
		return nil
	}, bounded)
	if err != nil {
		return nil, err
	}
	return result, nil
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (p *Provider) embed(ctx context.Context, modelID, text string) ([]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(embedRequest{Model: modelID, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	vec := make([]float32, len(parsed.Embedding))
	for i, f := range parsed.Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}

// Ping checks connectivity to the Ollama daemon without running inference.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("ollama: create ping request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama: API returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
