package aramexsa

import (
	"context"
	"sync"
	"time"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnSendShippingFile func(ctx context.Context, doc *InfoLinkDocument) error

	mu   sync.Mutex
	sent []*InfoLinkDocument
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// SendShippingFile accepts every document unless told otherwise.
func (m *MockAPIClient) SendShippingFile(ctx context.Context, doc *InfoLinkDocument) error {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}

	if m.SimulateErrors {
		return &APIError{StatusCode: 503, Message: "Simulated API error"}
	}

	m.mu.Lock()
	m.sent = append(m.sent, doc)
	m.mu.Unlock()

	if m.OnSendShippingFile != nil {
		return m.OnSendShippingFile(ctx, doc)
	}
	return nil
}

// Sent returns the documents accepted so far.
func (m *MockAPIClient) Sent() []*InfoLinkDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*InfoLinkDocument(nil), m.sent...)
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
