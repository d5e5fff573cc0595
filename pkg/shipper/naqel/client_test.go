package naqel_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/fulfillment/pkg/shipper"
	"github.com/tournevent/fulfillment/pkg/shipper/citycode"
	"github.com/tournevent/fulfillment/pkg/shipper/naqel"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const cityYAML = `
SA:
  country_code: KSA
  aliases:
    riyadh: RUH
    jeddah: JED
`

type stubPool struct {
	available int
	numbers   []string
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
	return n, nil
}

func newTestClient(t *testing.T, api naqel.APIClient, pool *stubPool) *naqel.Client {
	t.Helper()
	cities, err := citycode.Parse([]byte(cityYAML))
	require.NoError(t, err)

	cfg := naqel.Config{
		Cities: cities,
		Settings: shipper.Settings{Channels: map[string]map[string]string{
			"default": {"client_id": "9017", "password": "secret"},
		}},
	}
	return naqel.NewWithAPIClient(cfg, shipper.Deps{Numbers: pool}, api, otelzap.New(zap.NewNop()), nil)
}

func testShipment() *shipper.Shipment {
	return &shipper.Shipment{
		ID:            11,
		BoxQty:        1,
		DeliveryType:  shipper.DeliveryInternational,
		DeclaredValue: 450,
		CODAmount:     450,
		Items: []shipper.Item{
			{SKU: "SKU-9", Name: "Dress", Quantity: 3, UnitPrice: 150},
		},
		Order: &shipper.Order{
			Code:     "TV-3003",
			Channel:  "web",
			Currency: "SAR",
			IsCOD:    true,
			Email:    "sara@example.com",
			ShippingAddress: shipper.Address{
				FullName: "Sara", Address: "King Fahd Rd", District: "Olaya",
				City: "Riyadh City", BaseCities: []string{"riyadh"}, Country: "SA", Phone: "0500000000",
			},
		},
	}
}

func TestClient_CanSendShipment(t *testing.T) {
	pool := &stubPool{available: 5}
	client := newTestClient(t, naqel.NewMockAPIClient(), pool)
	ctx := context.Background()

	ok, err := client.CanSendShipment(ctx, testShipment())
	require.NoError(t, err)
	assert.True(t, ok)

	aed := testShipment()
	aed.Order.Currency = "AED"
	ok, _ = client.CanSendShipment(ctx, aed)
	assert.False(t, ok, "only SAR orders")

	unknown := testShipment()
	unknown.Order.ShippingAddress.City = "Atlantis"
	unknown.Order.ShippingAddress.BaseCities = nil
	ok, _ = client.CanSendShipment(ctx, unknown)
	assert.False(t, ok, "unknown city")

	pool.available = 0
	ok, err = client.CanSendShipment(ctx, testShipment())
	require.NoError(t, err)
	assert.False(t, ok, "empty pool")
}

func TestClient_CanSendShipment_NationalID(t *testing.T) {
	client := newTestClient(t, naqel.NewMockAPIClient(), &stubPool{available: 1})
	ctx := context.Background()

	tests := []struct {
		name   string
		doc    *shipper.IdentityDocument
		expect bool
	}{
		{"missing document", nil, false},
		{"valid id", &shipper.IdentityDocument{Number: "1234567890"}, true},
		{"arabic digits", &shipper.IdentityDocument{Number: "١٢٣٤٥٦٧٨٩٠"}, true},
		{"wrong prefix", &shipper.IdentityDocument{Number: "2234567890"}, false},
		{"too short", &shipper.IdentityDocument{Number: "123456789"}, false},
		{"letters", &shipper.IdentityDocument{Number: "12345678AB"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testShipment()
			s.DeclaredValue = 1000
			s.Order.Document = tt.doc
			ok, err := client.CanSendShipment(ctx, s)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, ok)
		})
	}
}

func TestClient_SendShipment(t *testing.T) {
	mockAPI := naqel.NewMockAPIClient()
	pool := &stubPool{numbers: []string{"300000001"}}
	client := newTestClient(t, mockAPI, pool)

	resp, err := client.SendShipment(context.Background(), &shipper.SendRequest{Shipment: testShipment(), Numbers: pool})

	require.NoError(t, err)
	assert.Equal(t, "300000001", resp.TrackingNumber)

	m := mockAPI.Manifest("300000001")
	require.NotNil(t, m)
	assert.Equal(t, 5, m.BillingType)
	assert.Equal(t, "0.3", m.Weight)
	assert.Equal(t, "450.00", m.CODCharge)
	assert.Equal(t, 56, m.LoadTypeID)
	assert.Equal(t, "RUH", m.ConsigneeInfo.CityCode)
	assert.Equal(t, "KSA", m.ConsigneeInfo.CountryCode)
	assert.Equal(t, "1000000000", m.ConsigneeInfo.ConsigneeNationalID)
	assert.Equal(t, "Olaya, King Fahd Rd", m.ConsigneeInfo.Address)
	assert.Equal(t, "9017", m.ClientInfo.ClientID)
	assert.Nil(t, m.IsCustomDutyPayByConsignee)
	require.Len(t, m.CommercialInvoice.Details, 1)
	assert.Equal(t, "SKU-9-wearing apparel", m.CommercialInvoice.Details[0].Description)
	assert.Equal(t, "62105000", m.CommercialInvoice.Details[0].CustomsCommodityCode)
}

func TestClient_SendShipment_HasErrorIsRetryable(t *testing.T) {
	mockAPI := naqel.NewMockAPIClient()
	mockAPI.OnUpdateWaybill = func(ctx context.Context, m *naqel.ManifestShipmentDetails, no string) (*naqel.UpdateWaybillResult, error) {
		return &naqel.UpdateWaybillResult{HasError: true, Message: "Invalid city"}, nil
	}
	pool := &stubPool{numbers: []string{"300000002"}}
	client := newTestClient(t, mockAPI, pool)

	_, err := client.SendShipment(context.Background(), &shipper.SendRequest{Shipment: testShipment(), Numbers: pool})

	require.Error(t, err)
	assert.True(t, client.IsRetryable(err))
	assert.Contains(t, err.Error(), "Invalid city")
}

func TestClient_SendShipment_PoolExhaustedIsFatal(t *testing.T) {
	pool := &stubPool{}
	client := newTestClient(t, naqel.NewMockAPIClient(), pool)

	_, err := client.SendShipment(context.Background(), &shipper.SendRequest{Shipment: testShipment(), Numbers: pool})

	assert.True(t, errors.Is(err, shipper.ErrNumberPoolExhausted))
	assert.False(t, client.IsRetryable(err))
}

func TestClient_ResendShipment_ReusesWaybill(t *testing.T) {
	mockAPI := naqel.NewMockAPIClient()
	client := newTestClient(t, mockAPI, &stubPool{})
	s := testShipment()
	s.TrackingNumber = "300000009"

	resp, err := client.ResendShipment(context.Background(), &shipper.SendRequest{Shipment: s})

	require.NoError(t, err)
	assert.Equal(t, "300000009", resp.TrackingNumber)
	assert.NotNil(t, mockAPI.Manifest("300000009"))
}

func TestClient_Track(t *testing.T) {
	mockAPI := naqel.NewMockAPIClient()
	mockAPI.OnTraceByMultiWaybillNo = func(ctx context.Context, ci naqel.ClientInformation, waybills []int64) ([]naqel.Tracking, error) {
		assert.Equal(t, []int64{300000001, 300000002}, waybills)
		return []naqel.Tracking{
			{WaybillNo: 300000001, ActivityCode: 7, Activity: "Delivered", Date: "2024-03-01T10:15:00"},
			{WaybillNo: 300000002, ActivityCode: 5, Activity: "Out for delivery", Date: "bad"},
			{WaybillNo: 300000002, HasError: true, ErrorMessage: "not found"},
		}, nil
	}
	client := newTestClient(t, mockAPI, &stubPool{})

	resp, err := client.Track(context.Background(), &shipper.TrackRequest{
		TrackingNumbers: []string{"300000001", "300000002", "NOT-A-NUMBER"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"NOT-A-NUMBER"}, resp.Skipped)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "300000001", resp.Events[0].TrackingNumber)
	assert.Equal(t, "7", resp.Events[0].Code)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC), resp.Events[0].Time)
}

func TestClient_Track_TransportErrorIsRetryable(t *testing.T) {
	mockAPI := naqel.NewMockAPIClient()
	mockAPI.SimulateErrors = true
	client := newTestClient(t, mockAPI, &stubPool{})

	_, err := client.Track(context.Background(), &shipper.TrackRequest{TrackingNumbers: []string{"1"}})

	require.Error(t, err)
	assert.True(t, client.IsRetryable(err))
}

func TestSOAPAPIClient_TraceByMultiWaybillNo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"http://tempuri.org/TraceByMultiWaybillNo"`, r.Header.Get("SOAPAction"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<WaybillNo><int>300000001</int><int>300000002</int></WaybillNo>")
		assert.Contains(t, string(body), "<ClientID>9017</ClientID>")

		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <TraceByMultiWaybillNoResponse xmlns="http://tempuri.org/">
      <TraceByMultiWaybillNoResult>
        <Tracking><WaybillNo>300000001</WaybillNo><ActivityCode>0</ActivityCode><Activity>Data received</Activity><Date>2024-03-01T08:00:00</Date></Tracking>
        <Tracking><WaybillNo>300000002</WaybillNo><ActivityCode>172</ActivityCode><Activity>Delivered</Activity><Date>2024-03-02T09:30:00.123</Date></Tracking>
      </TraceByMultiWaybillNoResult>
    </TraceByMultiWaybillNoResponse>
  </soap:Body>
</soap:Envelope>`))
	}))
	defer server.Close()

	api := naqel.NewSOAPAPIClient(naqel.SOAPAPIClientConfig{URL: server.URL})
	trackings, err := api.TraceByMultiWaybillNo(context.Background(), naqel.ClientInformation{ClientID: "9017"}, []int64{300000001, 300000002})

	require.NoError(t, err)
	require.Len(t, trackings, 2)
	assert.Equal(t, int64(300000002), trackings[1].WaybillNo)
	assert.Equal(t, 172, trackings[1].ActivityCode)
}

func TestSOAPAPIClient_UpdateWaybill(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<WaybillNo>300000001</WaybillNo>")
		assert.Contains(t, string(body), "<RefNo>TV-1</RefNo>")

		_, _ = w.Write([]byte(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>
<UpdateWaybillResponse xmlns="http://tempuri.org/"><UpdateWaybillResult><HasError>true</HasError><Message>Duplicate</Message></UpdateWaybillResult></UpdateWaybillResponse>
</soap:Body></soap:Envelope>`))
	}))
	defer server.Close()

	api := naqel.NewSOAPAPIClient(naqel.SOAPAPIClientConfig{URL: server.URL})
	result, err := api.UpdateWaybill(context.Background(), &naqel.ManifestShipmentDetails{RefNo: "TV-1"}, "300000001")

	require.NoError(t, err)
	assert.True(t, result.HasError)
	assert.Equal(t, "Duplicate", result.Message)
}
