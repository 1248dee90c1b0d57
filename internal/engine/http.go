package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// HTTPClient implements Engine against the model server's HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new model-server client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type geneOrderResponse struct {
	Genes []string `json:"genes"`
}

func (c *HTTPClient) GeneOrder(ctx context.Context) ([]string, error) {
	var resp geneOrderResponse
	if err := c.get(ctx, "/v1/gene-order", &resp); err != nil {
		return nil, err
	}
	return resp.Genes, nil
}

type embeddingsRequest struct {
	X [][]float64 `json:"x"`
}

type embeddingsResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

func (c *HTTPClient) Embeddings(ctx context.Context, x [][]float64) ([][]float64, error) {
	var resp embeddingsResponse
	if err := c.post(ctx, "/v1/embeddings", embeddingsRequest{X: x}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(x) {
		return nil, fmt.Errorf("%w: %d embeddings for %d cells", ErrEngineQuery, len(resp.Embeddings), len(x))
	}
	return resp.Embeddings, nil
}

type searchRequest struct {
	Queries [][]float64 `json:"queries"`
	K       int         `json:"k"`
}

type searchResponse struct {
	Neighbors []Neighbor `json:"neighbors"`
}

func (c *HTTPClient) SearchNearest(ctx context.Context, queries [][]float64, k int) ([]Neighbor, error) {
	var resp searchResponse
	if err := c.post(ctx, "/v1/search", searchRequest{Queries: queries, K: k}, &resp); err != nil {
		return nil, err
	}
	return resp.Neighbors, nil
}

type extractRequest struct {
	WorkDir string `json:"work_dir"`
}

type extractResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

func (c *HTTPClient) ExtractEmbeddings(ctx context.Context, workDir string) ([][]float64, error) {
	var resp extractResponse
	if err := c.post(ctx, "/v1/extract", extractRequest{WorkDir: workDir}, &resp); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

func (c *HTTPClient) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/ready", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrEngineQuery, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	return c.do(req, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrEngineQuery, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding engine response: %w", err)
	}
	return nil
}

// classifyError maps transport failures onto the package's sentinel errors.
func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrEngineTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrEngineTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
}
