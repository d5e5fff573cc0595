package naqel

import (
	"context"
	"sync"
	"time"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnUpdateWaybill         func(ctx context.Context, manifest *ManifestShipmentDetails, waybillNo string) (*UpdateWaybillResult, error)
	OnTraceByMultiWaybillNo func(ctx context.Context, client ClientInformation, waybills []int64) ([]Tracking, error)

	mu        sync.Mutex
	manifests map[string]*ManifestShipmentDetails
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{manifests: make(map[string]*ManifestShipmentDetails)}
}

// UpdateWaybill records the manifest and accepts it.
func (m *MockAPIClient) UpdateWaybill(ctx context.Context, manifest *ManifestShipmentDetails, waybillNo string) (*UpdateWaybillResult, error) {
	m.delay()
	if m.SimulateErrors {
		return nil, &APIError{Code: "SIMULATED", Message: "Simulated API error"}
	}

	m.mu.Lock()
	m.manifests[waybillNo] = manifest
	m.mu.Unlock()

	if m.OnUpdateWaybill != nil {
		return m.OnUpdateWaybill(ctx, manifest, waybillNo)
	}
	return &UpdateWaybillResult{WaybillNo: waybillNo}, nil
}

// TraceByMultiWaybillNo returns a received activity per waybill by default.
func (m *MockAPIClient) TraceByMultiWaybillNo(ctx context.Context, client ClientInformation, waybills []int64) ([]Tracking, error) {
	m.delay()
	if m.SimulateErrors {
		return nil, &APIError{Code: "SIMULATED", Message: "Simulated API error"}
	}
	if m.OnTraceByMultiWaybillNo != nil {
		return m.OnTraceByMultiWaybillNo(ctx, client, waybills)
	}

	now := time.Now().UTC().Format(dateLayout)
	out := make([]Tracking, 0, len(waybills))
	for _, w := range waybills {
		out = append(out, Tracking{WaybillNo: w, ActivityCode: 0, Activity: "Shipment data received", Date: now})
	}
	return out, nil
}

// Manifest returns the last manifest uploaded for a waybill.
func (m *MockAPIClient) Manifest(waybillNo string) *ManifestShipmentDetails {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.manifests[waybillNo]
}

func (m *MockAPIClient) delay() {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
