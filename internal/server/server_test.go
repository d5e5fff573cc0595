package server_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/fulfillment/internal/fulfillment"
	"github.com/tournevent/fulfillment/internal/server"
	"github.com/tournevent/fulfillment/internal/storage"
	"github.com/tournevent/fulfillment/internal/storage/memory"
	"github.com/tournevent/fulfillment/internal/telemetry"
	"github.com/tournevent/fulfillment/internal/tracking"
	"github.com/tournevent/fulfillment/pkg/shipper"
	"github.com/tournevent/fulfillment/pkg/shipper/mock"
)

type testEnv struct {
	store   *memory.Store
	dhl     *mock.Client
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := otelzap.New(zap.NewNop())
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	env := &testEnv{store: memory.New(), dhl: mock.New("dhl")}
	registry := shipper.NewRegistry()
	registry.Register(env.dhl)

	env.store.SetPriority(storage.Priority{Channel: "web", Country: "SA", Carrier: "dhl", Weight: 1})
	env.store.AddShipment(&shipper.Shipment{
		ID:           1,
		BoxQty:       1,
		DeliveryType: shipper.DeliveryInternational,
		Order: &shipper.Order{
			ID:              10,
			Code:            "TV-1",
			Channel:         "web",
			Status:          shipper.OrderComplete,
			ShippingAddress: shipper.Address{City: "Riyadh", Country: "SA"},
			ShippingMethod:  shipper.MethodHomeDelivery,
		},
	})

	selector := fulfillment.NewSelector(env.store, registry, metrics, logger)
	dispatcher := fulfillment.NewDispatcher(fulfillment.Deps{
		Store:    env.store,
		Registry: registry,
		Metrics:  metrics,
	}, selector, logger, nil)

	engine := tracking.NewEngine(env.store, tracking.NewPropagator(), nil, metrics, logger, nil)
	trackingSvc := tracking.NewService(registry, engine, tracking.NewPollingSource(env.store, registry, logger), nil)

	srv := server.New(server.Config{Port: 8080}, server.Services{
		Dispatcher: dispatcher,
		Tracker:    trackingSvc,
		Shipments:  env.store,
		Documents:  dispatcher,
		Gatherer:   reg,
	}, logger)
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	}
	return rec, body
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_Dispatch(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/v1/shipments/1/dispatch")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dhl", body["carrier"])
	assert.Equal(t, "TV-1", body["order_code"])
	assert.NotEmpty(t, body["tracking_number"])

	rec, body = env.do(t, http.MethodPost, "/v1/shipments/1/dispatch")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, body["error"], "already sent")

	metrics, _ := env.do(t, http.MethodGet, "/metrics")
	assert.Contains(t, metrics.Body.String(), `fulfillment_dispatch_total{carrier="dhl",operation="send",outcome="sent"} 1`)
}

func TestServer_DispatchErrors(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/v1/shipments/abc/dispatch")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/v1/shipments/99/dispatch")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/v1/shipments/1/dispatch?carrier=naqel")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	env.dhl.OnSend = func(req *shipper.SendRequest) (*shipper.SendResponse, error) {
		return nil, shipper.Retryable("dhl", "TIMEOUT", "gateway timeout")
	}
	rec, body := env.do(t, http.MethodPost, "/v1/shipments/1/dispatch")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "TIMEOUT", body["code"])
	assert.Equal(t, true, body["retryable"])
}

func TestServer_Resend(t *testing.T) {
	env := newTestEnv(t)
	env.dhl.OnSend = func(req *shipper.SendRequest) (*shipper.SendResponse, error) {
		return nil, shipper.Retryable("dhl", "TIMEOUT", "gateway timeout")
	}
	rec, _ := env.do(t, http.MethodPost, "/v1/shipments/1/dispatch")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	rec, body := env.do(t, http.MethodPost, "/v1/carriers/dhl/resend")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, body["attempted"])
	assert.Equal(t, 1.0, body["sent"])
	assert.Empty(t, body["failures"])

	rec, _ = env.do(t, http.MethodPost, "/v1/carriers/dhl/resend?abort=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/v1/carriers/fedex/resend")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_TrackingAndMilestones(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(t, http.MethodPost, "/v1/shipments/1/dispatch")
	require.Equal(t, http.StatusOK, rec.Code)
	tn := body["tracking_number"].(string)

	at := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Second)
	env.dhl.OnTrack = func(req *shipper.TrackRequest) (*shipper.TrackResponse, error) {
		return &shipper.TrackResponse{Events: []shipper.RawEvent{
			{TrackingNumber: tn, Code: "ES", Time: at, Text: "Enroute"},
			{TrackingNumber: tn, Code: "PL", Time: at.Add(time.Hour), Text: "Processed"},
		}}, nil
	}

	rec, body = env.do(t, http.MethodPost, "/v1/carriers/dhl/tracking?tracking_number="+tn)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, body["events"])
	assert.Equal(t, 2.0, body["appended"])

	rec, body = env.do(t, http.MethodGet, "/v1/shipments/1/milestones")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tn, body["tracking_number"])
	assert.Len(t, body["milestones"], 2)

	rec, body = env.do(t, http.MethodGet, "/v1/shipments/1/milestones?customer=true")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["milestones"], 1)
	first := body["milestones"].([]any)[0].(map[string]any)
	assert.Equal(t, "PL", first["carrier_code"])

	rec, _ = env.do(t, http.MethodPost, "/v1/carriers/dhl/tracking?from=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/v1/shipments/42/milestones")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Documents(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/v1/shipments/1/documents/shipping")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, body["error"], "not sent")

	rec, _ = env.do(t, http.MethodPost, "/v1/shipments/1/dispatch")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/v1/shipments/1/documents/shipping")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="1-shipping.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.4 dhl shipping 1", rec.Body.String())

	rec, _ = env.do(t, http.MethodGet, "/v1/shipments/1/documents/invoice")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4 dhl invoice 1", rec.Body.String())

	rec, _ = env.do(t, http.MethodGet, "/v1/shipments/1/documents/manifest")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/v1/shipments/7/documents/shipping")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor_DocumentNotAvailable(t *testing.T) {
	err := fmt.Errorf("dhl label for shipment 1: %w", shipper.ErrDocumentNotAvailable)
	assert.Equal(t, http.StatusNotFound, server.StatusFor(err))
}
