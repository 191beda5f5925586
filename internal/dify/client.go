package dify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Alwanly/dify-indexing-watch/internal/config"
	"github.com/Alwanly/dify-indexing-watch/pkg/logger"
	"github.com/Alwanly/dify-indexing-watch/pkg/retry"
)

const maxErrorBodySize = 64 << 10

// StatusFetcher fetches the indexing status of one upload batch.
type StatusFetcher interface {
	GetIndexingStatus(ctx context.Context, datasetID, batch string) (*IndexingStatusResponse, error)
}

// Client talks to the Dify knowledge-base API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	logger      *logger.CanonicalLogger
	retryPolicy retry.Policy
}

// NewClient creates a knowledge-base client from the loaded config.
func NewClient(cfg *config.Config, log *logger.CanonicalLogger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Dify.RequestTimeout},
		baseURL:     strings.TrimRight(cfg.Dify.Host, "/"),
		apiKey:      cfg.Dify.KnowledgeBaseAPIKey,
		logger:      log,
		retryPolicy: cfg.RetryPolicy(),
	}
}

// GetIndexingStatus returns the per-document indexing state of a batch.
// Transport failures, 429 and 5xx answers are retried; other errors are
// returned at once.
func (c *Client) GetIndexingStatus(ctx context.Context, datasetID, batch string) (*IndexingStatusResponse, error) {
	if datasetID == "" || batch == "" {
		return nil, errors.New("dataset id and batch are required")
	}
	endpoint := fmt.Sprintf("%s/datasets/%s/documents/%s/indexing-status",
		c.baseURL, url.PathEscape(datasetID), url.PathEscape(batch))

	var out *IndexingStatusResponse
	attempts := 0
	err := retry.Do(ctx, c.retryPolicy, func(ctx context.Context) error {
		attempts++
		resp, err := c.getIndexingStatus(ctx, endpoint)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Temporary() {
				return retry.Permanent(err)
			}
			if ctx.Err() != nil {
				return retry.Permanent(err)
			}
			c.logger.Debug("indexing status request failed",
				logger.Int(logger.FieldAttempt, attempts),
				logger.Err(err),
			)
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getIndexingStatus(ctx context.Context, endpoint string) (*IndexingStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var status IndexingStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode indexing status: %w", err)
	}
	return &status, nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	apiErr.StatusCode = resp.StatusCode
	return apiErr
}
