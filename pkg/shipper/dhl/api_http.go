package dhl

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

// Service endpoints.
const (
	ProductionURL = "https://wsbexpress.dhl.com/rest/gbl/"
	StagingURL    = "https://wsbexpress.dhl.com/rest/sndpt/"
)

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	baseURL := cfg.BaseURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &HTTPAPIClient{
		baseURL:  baseURL,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateShipment books a shipment.
// POST {base}ShipmentRequest
func (c *HTTPAPIClient) CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error) {
	resp, err := c.doRequest(ctx, "ShipmentRequest", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read shipment response: %w", err)
	}

	var result ShipmentResponse
	if err := json.Unmarshal(body, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, c.parseError(resp.StatusCode, body)
		}
		return nil, &APIError{Code: "DECODE", Message: fmt.Sprintf("failed to decode shipment response: %v", err)}
	}

	var messages []string
	for _, n := range result.ShipmentResponse.Notification {
		if n.Message != "" {
			messages = append(messages, n.Message)
		}
	}
	if resp.StatusCode != http.StatusOK || len(messages) > 0 {
		return nil, &APIError{
			Code:    fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message: fmt.Sprintf("Invalid DHL Response (%d): %s", resp.StatusCode, strings.Join(messages, " ")),
		}
	}

	return &result, nil
}

// Track retrieves checkpoints for a group of AWBs.
// POST {base}TrackingRequest
func (c *HTTPAPIClient) Track(ctx context.Context, req *TrackingRequest) (*TrackingResponse, error) {
	resp, err := c.doRequest(ctx, "TrackingRequest", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tracking response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp.StatusCode, body)
	}

	var result TrackingResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &APIError{Code: "DECODE", Message: fmt.Sprintf("failed to decode tracking response: %v", err)}
	}

	items := result.Items()
	if len(items) == 1 && items[0].Status.ActionStatus != actionSuccess {
		return nil, &APIError{
			Code:    "TRACKING_ERROR",
			Message: "Invalid DHL Request: " + conditionText(items[0].Status),
		}
	}

	return &result, nil
}

// doRequest performs an HTTP request with proper headers and authentication.
func (c *HTTPAPIClient) doRequest(ctx context.Context, operation string, body interface{}) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+operation, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.username, c.password)

	return c.httpClient.Do(req)
}

// parseError extracts error information from a non-200 response.
func (c *HTTPAPIClient) parseError(status int, body []byte) error {
	return &APIError{
		Code:    fmt.Sprintf("HTTP_%d", status),
		Message: fmt.Sprintf("Invalid DHL Response (%d): %s", status, strings.TrimSpace(string(body))),
	}
}

func conditionText(status ActionStatus) string {
	if status.Condition == nil {
		return status.ActionStatus
	}
	parts := make([]string, 0, len(status.Condition.ArrayOfConditionItem))
	for _, cond := range status.Condition.ArrayOfConditionItem {
		parts = append(parts, cond.ConditionData)
	}
	return strings.Join(parts, "; ")
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
