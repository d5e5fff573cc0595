package aramexsa

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Service endpoints.
const (
	ProductionURL = "https://live-example.url.com"
	StagingURL    = "https://example.url.com"
)

// allowedStatuses are the HTTP codes Aramex answers for an accepted file.
var allowedStatuses = map[int]bool{
	200: true, 201: true, 202: true, 203: true, 204: true,
	205: true, 206: true, 207: true, 226: true,
}

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	url        string
	username   string
	password   string
	apiKey     string
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	URL      string
	Username string
	Password string
	APIKey   string
	Timeout  time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &HTTPAPIClient{
		url:      cfg.URL,
		username: cfg.Username,
		password: cfg.Password,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SendShippingFile posts the document signed with the account's API key.
func (c *HTTPAPIClient) SendShippingFile(ctx context.Context, doc *InfoLinkDocument) error {
	body, err := xml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("x-hmac-sha256", Sign(c.apiKey, body))
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Message: fmt.Sprintf("Aramex SA service not available: %v", err)}
	}
	defer resp.Body.Close()

	if !allowedStatuses[resp.StatusCode] {
		text, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Invalid response code: %d, response: %s", resp.StatusCode, text),
		}
	}
	return nil
}

// Sign returns the base64 HMAC-SHA256 of body keyed with apiKey.
func Sign(apiKey string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(apiKey))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
