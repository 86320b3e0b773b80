package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"pdfrag/internal/domain"
)

const (
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultModel          = "text-embedding-ada-002"
	DefaultTimeout        = 5 * time.Minute
	DefaultConnectTimeout = time.Minute
	DefaultMaxRetries     = 3
)

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL        string
	APIKeyEnv      string
	Model          string
	Timeout        time.Duration
	ConnectTimeout time.Duration
	// MaxRetries is passed to the SDK, which backs off on 429 and 5xx.
	// Negative disables retries.
	MaxRetries int
	// RequestsPerSecond caps outgoing requests; 0 means unlimited.
	RequestsPerSecond float64
}

// Client is an OpenAI-compatible embeddings provider.
type Client struct {
	client  openai.Client
	model   string
	limiter *rate.Limiter
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	c := &Client{
		client: openai.NewClient(RequestOptions(key, cfg.BaseURL, cfg.Timeout, cfg.ConnectTimeout, cfg.MaxRetries)...),
		model:  cfg.Model,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c, nil
}

// RequestOptions builds the SDK options shared by the embeddings and chat
// clients: a bounded connect timeout, an overall request timeout and retries.
func RequestOptions(apiKey, baseURL string, timeout, connectTimeout time.Duration, maxRetries int) []option.RequestOption {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if connectTimeout == 0 {
		connectTimeout = DefaultConnectTimeout
	}
	switch {
	case maxRetries == 0:
		maxRetries = DefaultMaxRetries
	case maxRetries < 0:
		maxRetries = 0
	}
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
			TLSHandshakeTimeout: connectTimeout,
		},
	}
	return []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/"),
		option.WithHTTPClient(httpClient),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(maxRetries),
	}
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// EmbedBatch embeds texts in a single request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, Classify(err)
	}
	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", domain.ErrItemRejected, d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: no embedding returned for input %d", domain.ErrItemRejected, i)
		}
	}
	return out, nil
}

// EmbedOne embeds a single text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// Classify maps SDK and transport errors onto the domain error kinds.
// Quota, auth, server and network failures make the provider unavailable;
// any other API error rejects the input.
func Classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch code := apiErr.StatusCode; {
		case code == http.StatusTooManyRequests,
			code == http.StatusUnauthorized,
			code == http.StatusForbidden,
			code >= 500:
			return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
		default:
			return fmt.Errorf("%w: %v", domain.ErrItemRejected, err)
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
}
