package aramex

import (
	"context"
	"sync"
	"time"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnFetchAllLocations func(ctx context.Context, req *LocationsRequest) (*LocationsResponse, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// FetchAllLocations returns one location per country by default.
func (m *MockAPIClient) FetchAllLocations(ctx context.Context, req *LocationsRequest) (*LocationsResponse, error) {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return nil, &APIError{StatusCode: 503, Message: "Simulated API error"}
	}
	if m.OnFetchAllLocations != nil {
		return m.OnFetchAllLocations(ctx, req)
	}
	return &LocationsResponse{Locations: []Location{{
		ID:           "1",
		Description:  "Aramex " + req.CountryCode + " Main Office",
		Telephone:    "800 100 0880",
		WorkingHours: "08:00-20:00",
		Address:      LocationAddress{Line1: "Main Street", City: "Capital", CountryCode: req.CountryCode},
	}}}, nil
}

// MockUploader keeps uploaded manifests in memory.
type MockUploader struct {
	SimulateErrors bool

	mu    sync.Mutex
	files map[string][]byte
}

// NewMockUploader creates an empty in-memory uploader.
func NewMockUploader() *MockUploader {
	return &MockUploader{files: make(map[string][]byte)}
}

// Upload stores data under remotePath.
func (m *MockUploader) Upload(ctx context.Context, remotePath string, data []byte) error {
	if m.SimulateErrors {
		return &APIError{Message: "Simulated upload error"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[remotePath] = append([]byte(nil), data...)
	return nil
}

// Files returns a copy of the uploaded files.
func (m *MockUploader) Files() map[string][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte, len(m.files))
	for k, v := range m.files {
		out[k] = v
	}
	return out
}

// Ensure mocks implement their interfaces
var (
	_ APIClient = (*MockAPIClient)(nil)
	_ Uploader  = (*MockUploader)(nil)
)
