package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dzheng/digitalmemory/internal/memerr"
)

// OpenAIEmbedder implements Embedder against any OpenAI-compatible
// /v1/embeddings endpoint (spec section 6's remote embedding contract),
// fixing D on the first successful call.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	retry   RetryConfig
	timeout time.Duration

	mu  sync.Mutex
	dim int
}

// NewOpenAIEmbedder builds a client for baseURL (e.g. "https://api.openai.com/v1").
func NewOpenAIEmbedder(baseURL, apiKey, model string, timeout time.Duration, retry RetryConfig) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		retry:   retry,
		timeout: timeout,
	}
}

func (e *OpenAIEmbedder) ModelName() string { return e.model }

func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dim
}

func (e *OpenAIEmbedder) Close() error { return nil }

// Embed embeds a single text. Whitespace-only text returns a zero vector
// of the already-established dimension without a network call (matching
// the teacher's Ollama embedder's empty-text shortcut).
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds several texts in one remote call, retrying transient
// failures (timeouts, 429, 5xx) with exponential backoff and enforcing the
// first-seen dimension against every subsequent result.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	empty := make(map[int]bool, len(texts))
	var toEmbed []string
	var toEmbedIdx []int
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			empty[i] = true
			continue
		}
		toEmbed = append(toEmbed, t)
		toEmbedIdx = append(toEmbedIdx, i)
	}

	out := make([][]float32, len(texts))

	if len(toEmbed) > 0 {
		var resp openai.EmbeddingResponse
		callErr := WithRetry(ctx, e.retry, isRetryableAPIErr, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()

			r, err := e.client.CreateEmbeddings(callCtx, openai.EmbeddingRequestStrings{
				Input: toEmbed,
				Model: openai.EmbeddingModel(e.model),
			})
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		if callErr != nil {
			return nil, memerr.New(memerr.ErrCodeEmbeddingFailed, "embedding request failed after retries", callErr)
		}
		if len(resp.Data) != len(toEmbed) {
			return nil, memerr.New(memerr.ErrCodeEmbeddingFailed,
				fmt.Sprintf("embedding response count %d != request count %d", len(resp.Data), len(toEmbed)), nil)
		}

		e.mu.Lock()
		for _, d := range resp.Data {
			dim := len(d.Embedding)
			if e.dim == 0 {
				e.dim = dim
			} else if e.dim != dim {
				e.mu.Unlock()
				return nil, memerr.New(memerr.ErrCodeDimensionMismatch,
					fmt.Sprintf("embedding dimension changed from %d to %d", e.dim, dim), nil)
			}
		}
		e.mu.Unlock()

		for _, d := range resp.Data {
			out[toEmbedIdx[d.Index]] = d.Embedding
		}
	}

	dim := e.Dimensions()
	for i := range empty {
		out[i] = make([]float32, dim)
	}

	return out, nil
}

// isRetryableAPIErr classifies connection errors, 429 and 5xx as
// retryable per spec section 4.1.
func isRetryableAPIErr(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	// Anything else (DNS failure, connection refused, timeout) is a
	// transport-level error and is treated as transient.
	return true
}
