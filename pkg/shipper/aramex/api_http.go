package aramex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Location service endpoints.
const (
	ProductionURL = "https://live-example.url.com"
	StagingURL    = "https://example.url.com"
)

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	url        string
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	URL     string
	Timeout time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &HTTPAPIClient{
		url: cfg.URL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchAllLocations posts the location query.
func (c *HTTPAPIClient) FetchAllLocations(ctx context.Context, in *LocationsRequest) (*LocationsResponse, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("Aramex location service not available: %v", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read locations response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Invalid response code: %d. Response: %s", resp.StatusCode, data),
		}
	}

	var result LocationsResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &APIError{Message: fmt.Sprintf("failed to decode locations response: %v", err)}
	}
	if result.HasErrors {
		messages := make([]string, 0, len(result.Notifications))
		for _, n := range result.Notifications {
			messages = append(messages, n.Message)
		}
		return nil, &APIError{Message: strings.Join(messages, ";")}
	}
	return &result, nil
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
