// Package tei is a client for a text-embeddings-inference server hosting a sentence-transformer model.
package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

var (
	// ErrEmptyInput is returned when Embed is called with an empty text.
	ErrEmptyInput = errors.New("tei: input text is empty")
	// ErrCountMismatch is returned when the server returns a different number of vectors than inputs.
	ErrCountMismatch = errors.New("tei: embedding count mismatch")
	// ErrDimensionMismatch is returned when a vector length differs from the configured dimensions.
	ErrDimensionMismatch = errors.New("tei: embedding dimension mismatch")
)

const (
	defaultTimeout  = 30 * time.Second
	defaultRetryMax = 3
	maxErrorBody    = 1024
)

// Options configures the client.
type Options struct {
	// BaseURL of the server, e.g. http://localhost:8081. The /embed path is appended.
	BaseURL string
	// APIKey is sent as a bearer token when set.
	APIKey string
	// Dimensions, when positive, is checked against every returned vector.
	Dimensions int
	// Normalize asks the server to L2-normalize vectors (default true on the server).
	Normalize bool
	// Truncate asks the server to truncate inputs longer than the model window.
	Truncate bool
	RetryMax int
	Timeout  time.Duration
}

// Client calls POST /embed.
type Client struct {
	baseURL    string
	apiKey     string
	dimensions int
	normalize  bool
	truncate   bool
	httpClient *retryablehttp.Client
}

type embedRequest struct {
	Inputs    []string `json:"inputs"`
	Normalize bool     `json:"normalize"`
	Truncate  bool     `json:"truncate"`
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}

// NewClient creates a client. Zero RetryMax and Timeout use defaults.
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}

	if opts.RetryMax == 0 {
		opts.RetryMax = defaultRetryMax
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil

	return &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		dimensions: opts.Dimensions,
		normalize:  opts.Normalize,
		truncate:   opts.Truncate,
		httpClient: retryClient,
	}
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("text at index %d: %w", i, ErrEmptyInput)
		}
	}

	body, err := json.Marshal(embedRequest{Inputs: texts, Normalize: c.normalize, Truncate: c.truncate})
	if err != nil {
		return nil, fmt.Errorf("tei: marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tei: create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tei: embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("tei: decode response: %w", err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, len(vectors), len(texts))
	}

	if c.dimensions > 0 {
		for i, v := range vectors {
			if len(v) != c.dimensions {
				return nil, fmt.Errorf("%w: vector %d has %d, want %d", ErrDimensionMismatch, i, len(v), c.dimensions)
			}
		}
	}

	return vectors, nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var e errorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Error != "" {
		return fmt.Errorf("tei: status %d: %s (%s)", resp.StatusCode, e.Error, e.ErrorType)
	}

	return fmt.Errorf("tei: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
