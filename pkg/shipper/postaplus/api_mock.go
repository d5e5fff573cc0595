package postaplus

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnSpecialShipmentPackage func(ctx context.Context, info *ShipInfo) (string, error)
	OnShipmentTracking       func(ctx context.Context, req *TrackingQuery) ([]TrackShipment, error)

	mu   sync.Mutex
	sent []*ShipInfo
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// SpecialShipmentPackage echoes the waybill like the live service does.
func (m *MockAPIClient) SpecialShipmentPackage(ctx context.Context, info *ShipInfo) (string, error) {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return "", errors.New("simulated API error")
	}

	m.mu.Lock()
	m.sent = append(m.sent, info)
	m.mu.Unlock()

	if m.OnSpecialShipmentPackage != nil {
		return m.OnSpecialShipmentPackage(ctx, info)
	}
	return strconv.FormatInt(info.WayBill, 10), nil
}

// ShipmentTracking returns a single pickup event by default.
func (m *MockAPIClient) ShipmentTracking(ctx context.Context, req *TrackingQuery) ([]TrackShipment, error) {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return nil, errors.New("simulated API error")
	}
	if m.OnShipmentTracking != nil {
		return m.OnShipmentTracking(ctx, req)
	}
	return []TrackShipment{
		{Event: "AS", DateTime: time.Now().UTC().Format(dateLayout), Note: "Shipment picked up"},
	}, nil
}

// Sent returns the shipments registered so far.
func (m *MockAPIClient) Sent() []*ShipInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ShipInfo(nil), m.sent...)
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
