package aramexsa_test

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/fulfillment/pkg/shipper"
	"github.com/tournevent/fulfillment/pkg/shipper/aramexsa"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

type stubPool struct {
	available int
	numbers   []string
	taken     []string
}

func (p *stubPool) Available(ctx context.Context, carrier, group string) (int, error) {
	return p.available, nil
}

func (p *stubPool) Take(ctx context.Context, carrier, group string) (string, error) {
	if len(p.numbers) == 0 {
		return "", shipper.ErrNumberPoolExhausted
	}
	n := p.numbers[0]
	p.numbers = p.numbers[1:]
	p.taken = append(p.taken, n)
	return n, nil
}

type stubRenderer struct{ variants []string }

func (r *stubRenderer) Render(ctx context.Context, kind shipper.DocumentKind, variant string, s *shipper.Shipment) (*shipper.Document, error) {
	r.variants = append(r.variants, variant)
	return &shipper.Document{Kind: kind, Variant: variant, Data: []byte("WAYBILL")}, nil
}

func newTestClient(api aramexsa.APIClient, pool *stubPool, docs *stubRenderer) *aramexsa.Client {
	cfg := aramexsa.Config{Settings: shipper.Settings{Channels: map[string]map[string]string{
		"default": {"entity_id": "E1", "entity_pin": "P1", "location": "RUH", "account_name": "Tournevent"},
	}}}
	return aramexsa.NewWithAPIClient(cfg, shipper.Deps{Numbers: pool, Documents: docs}, api, otelzap.New(zap.NewNop()), nil)
}

func localShipment() *shipper.Shipment {
	return &shipper.Shipment{
		ID:           7,
		BoxQty:       1,
		DeliveryType: shipper.DeliveryLocal,
		CODAmount:    250,
		Items: []shipper.Item{
			{SKU: "SKU-1", Name: "Abaya", Quantity: 2, UnitPrice: 100, Transit: true},
		},
		Order: &shipper.Order{
			Code:     "TV-2002",
			Channel:  "web",
			Currency: "SAR",
			IsCOD:    true,
			ShippingAddress: shipper.Address{
				FullName: "Noura", Address: "Tahlia St", District: "Rawdah", City: "Jeddah", Country: "SA",
			},
		},
	}
}

func TestClient_CanSendShipment(t *testing.T) {
	pool := &stubPool{available: 3}
	client := newTestClient(aramexsa.NewMockAPIClient(), pool, &stubRenderer{})
	ctx := context.Background()

	ok, err := client.CanSendShipment(ctx, localShipment())
	require.NoError(t, err)
	assert.True(t, ok)

	intl := localShipment()
	intl.DeliveryType = shipper.DeliveryInternational
	ok, _ = client.CanSendShipment(ctx, intl)
	assert.False(t, ok)

	pool.available = 0
	ok, err = client.CanSendShipment(ctx, localShipment())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_SendShipment(t *testing.T) {
	mockAPI := aramexsa.NewMockAPIClient()
	pool := &stubPool{available: 1, numbers: []string{"44000001"}}
	docs := &stubRenderer{}
	client := newTestClient(mockAPI, pool, docs)

	resp, err := client.SendShipment(context.Background(), &shipper.SendRequest{Shipment: localShipment(), Numbers: pool})

	require.NoError(t, err)
	assert.Equal(t, "44000001", resp.TrackingNumber)
	assert.Equal(t, []string{shipper.VariantSaudi}, docs.variants)

	sent := mockAPI.Sent()
	require.Len(t, sent, 1)
	hawb := sent[0].HAWB
	assert.Equal(t, "44000001", hawb.HAWBNumber)
	assert.Equal(t, "215", sent[0].AccessRequest.DocumentType)
	assert.Equal(t, "250.00", hawb.CODValue)
	assert.Equal(t, "CODS", hawb.Services)
	require.Len(t, hawb.Items, 1)
	assert.Equal(t, "200.00", hawb.Items[0].ItemsCustomsValue)
	assert.Equal(t, "Yes", hawb.Items[0].MarksAndNumbers)
}

func TestClient_SendShipment_PoolExhaustedIsFatal(t *testing.T) {
	pool := &stubPool{}
	client := newTestClient(aramexsa.NewMockAPIClient(), pool, &stubRenderer{})

	_, err := client.SendShipment(context.Background(), &shipper.SendRequest{Shipment: localShipment(), Numbers: pool})

	require.Error(t, err)
	assert.True(t, errors.Is(err, shipper.ErrNumberPoolExhausted))
	assert.False(t, client.IsRetryable(err))
}

func TestClient_SendShipment_FailureIsRetryable(t *testing.T) {
	mockAPI := aramexsa.NewMockAPIClient()
	mockAPI.SimulateErrors = true
	pool := &stubPool{numbers: []string{"44000002"}}
	client := newTestClient(mockAPI, pool, &stubRenderer{})

	_, err := client.SendShipment(context.Background(), &shipper.SendRequest{Shipment: localShipment(), Numbers: pool})

	require.Error(t, err)
	assert.True(t, client.IsRetryable(err))
}

func TestClient_SendShipment_RejectedCredentialsAreFinal(t *testing.T) {
	mockAPI := aramexsa.NewMockAPIClient()
	mockAPI.OnSendShippingFile = func(ctx context.Context, doc *aramexsa.InfoLinkDocument) error {
		return &aramexsa.APIError{StatusCode: http.StatusUnauthorized, Message: "invalid signature"}
	}
	pool := &stubPool{numbers: []string{"44000003"}}
	client := newTestClient(mockAPI, pool, &stubRenderer{})

	_, err := client.SendShipment(context.Background(), &shipper.SendRequest{Shipment: localShipment(), Numbers: pool})

	require.Error(t, err)
	assert.True(t, errors.Is(err, shipper.ErrAuthenticationFailed))
	assert.False(t, client.IsRetryable(err))

	var se *shipper.ShipperError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
}

func TestClient_ResendShipment_NotAllowed(t *testing.T) {
	client := newTestClient(aramexsa.NewMockAPIClient(), &stubPool{}, &stubRenderer{})

	_, err := client.ResendShipment(context.Background(), &shipper.SendRequest{Shipment: localShipment()})

	assert.True(t, errors.Is(err, shipper.ErrResendNotAllowed))
	assert.False(t, client.IsRetryable(err))
}

func TestHTTPAPIClient_SignsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, aramexsa.Sign("key-1", body), r.Header.Get("x-hmac-sha256"))
		assert.Equal(t, "application/xml", r.Header.Get("Content-Type"))

		var doc aramexsa.InfoLinkDocument
		assert.NoError(t, xml.Unmarshal(body, &doc))
		assert.Equal(t, "AWB1", doc.HAWB.HAWBNumber)

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	api := aramexsa.NewHTTPAPIClient(aramexsa.HTTPAPIClientConfig{URL: server.URL, APIKey: "key-1"})
	err := api.SendShippingFile(context.Background(), &aramexsa.InfoLinkDocument{HAWB: aramexsa.HAWB{HAWBNumber: "AWB1"}})

	require.NoError(t, err)
}

func TestHTTPAPIClient_RejectsUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad hawb"))
	}))
	defer server.Close()

	api := aramexsa.NewHTTPAPIClient(aramexsa.HTTPAPIClientConfig{URL: server.URL})
	err := api.SendShippingFile(context.Background(), &aramexsa.InfoLinkDocument{})

	var apiErr *aramexsa.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestSign_KnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	assert.Equal(t, "W9zBRr9gdU5qBCQmCJV1x1oAPwidJzmDnexYuWTsOEM=", aramexsa.Sign("Jefe", []byte("what do ya want for nothing?")))
}
