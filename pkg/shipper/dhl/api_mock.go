package dhl

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnCreateShipment func(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error)
	OnTrack          func(ctx context.Context, req *TrackingRequest) (*TrackingResponse, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// CreateShipment returns a mock AWB and label.
func (m *MockAPIClient) CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error) {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}

	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}

	if m.OnCreateShipment != nil {
		return m.OnCreateShipment(ctx, req)
	}

	awb := fmt.Sprintf("%010d", uuid.New().ID())
	resp := &ShipmentResponse{}
	resp.ShipmentResponse.ShipmentIdentificationNumber = flexString(awb)
	resp.ShipmentResponse.LabelImage = []LabelImage{{
		LabelImageFormat: "PDF",
		GraphicImage:     base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 dhl " + awb)),
	}}
	return resp, nil
}

// Track returns no checkpoints unless OnTrack is set.
func (m *MockAPIClient) Track(ctx context.Context, req *TrackingRequest) (*TrackingResponse, error) {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}

	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}

	if m.OnTrack != nil {
		return m.OnTrack(ctx, req)
	}

	return &TrackingResponse{}, nil
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
