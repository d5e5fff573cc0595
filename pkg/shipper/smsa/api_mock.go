package smsa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnAddShip       func(ctx context.Context, req *AddShipRequest) (string, error)
	OnGetTracking   func(ctx context.Context, awb, passkey string) ([]TrackingEntry, error)
	OnGetRTLCities  func(ctx context.Context, passkey string) ([]string, error)
	OnGetAllRetails func(ctx context.Context, passkey string) ([]Retail, error)

	counter    atomic.Int64
	cityCalls  atomic.Int64
	mu         sync.Mutex
	registered []*AddShipRequest
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	m := &MockAPIClient{}
	m.counter.Store(290000000000)
	return m
}

var errSimulated = errors.New("simulated API error")

// AddShip records the request and returns a sequential AWB.
func (m *MockAPIClient) AddShip(ctx context.Context, req *AddShipRequest) (string, error) {
	if err := m.begin(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.registered = append(m.registered, req)
	m.mu.Unlock()

	if m.OnAddShip != nil {
		return m.OnAddShip(ctx, req)
	}
	return fmt.Sprintf("%d", m.counter.Add(1)), nil
}

// GetPDF returns a minimal PDF.
func (m *MockAPIClient) GetPDF(ctx context.Context, awb, passkey string) ([]byte, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	return []byte("%PDF-1.4\n% SMSA " + awb + "\n%%EOF"), nil
}

// GetTracking returns no activity unless OnGetTracking is set.
func (m *MockAPIClient) GetTracking(ctx context.Context, awb, passkey string) ([]TrackingEntry, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	if m.OnGetTracking != nil {
		return m.OnGetTracking(ctx, awb, passkey)
	}
	return nil, nil
}

// GetRTLCities returns the main Saudi cities by default.
func (m *MockAPIClient) GetRTLCities(ctx context.Context, passkey string) ([]string, error) {
	m.cityCalls.Add(1)
	if err := m.begin(); err != nil {
		return nil, err
	}
	if m.OnGetRTLCities != nil {
		return m.OnGetRTLCities(ctx, passkey)
	}
	return []string{"RIYADH", "JEDDAH", "DAMMAM", "MAKKAH", "MADINAH"}, nil
}

// GetAllRetails returns one Riyadh outlet by default.
func (m *MockAPIClient) GetAllRetails(ctx context.Context, passkey string) ([]Retail, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	if m.OnGetAllRetails != nil {
		return m.OnGetAllRetails(ctx, passkey)
	}
	return []Retail{{
		Code: "RUH001", City: "Riyadh", AddressEN: "Olaya St", AddressAR: "شارع العليا",
		GPS: "24.6907,46.6853", Phone: "920009999",
	}}, nil
}

// Registered returns the addShip requests received so far.
func (m *MockAPIClient) Registered() []*AddShipRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*AddShipRequest(nil), m.registered...)
}

// CityCalls returns how many times the city list was requested.
func (m *MockAPIClient) CityCalls() int {
	return int(m.cityCalls.Load())
}

func (m *MockAPIClient) begin() error {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return errSimulated
	}
	return nil
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
