package postaplus_test

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
	"github.com/tournevent/fulfillment/pkg/shipper/postaplus"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

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

func newTestClient(api postaplus.APIClient, pool *stubPool) *postaplus.Client {
	cfg := postaplus.Config{Settings: shipper.Settings{Channels: map[string]map[string]string{
		"default": {"username": "tv", "password": "pw", "shipper_account": "ACC1", "telephone": "+971 4 000 0000"},
	}}}
	return postaplus.NewWithAPIClient(cfg, shipper.Deps{Numbers: pool}, api, otelzap.New(zap.NewNop()), nil)
}

func kuwaitShipment() *shipper.Shipment {
	return &shipper.Shipment{
		ID:            21,
		BoxQty:        1,
		DeliveryType:  shipper.DeliveryInternational,
		DeclaredValue: 320,
		CODAmount:     320,
		Items:         []shipper.Item{{SKU: "SKU-4", Quantity: 2, UnitPrice: 160}},
		Order: &shipper.Order{
			Code:     "TV-4004",
			Channel:  "web",
			Currency: "KWD",
			IsCOD:    true,
			ShippingAddress: shipper.Address{
				FullName: "Fahad (Office)", Address: "Block 3; Street 5", City: "Salmiya", Country: "KW",
				Phone: "+965 ٥٥٥٥ ١٢٣٤",
			},
		},
	}
}

func TestClient_CanSendShipment(t *testing.T) {
	pool := &stubPool{available: 2}
	client := newTestClient(postaplus.NewMockAPIClient(), pool)
	ctx := context.Background()

	ok, err := client.CanSendShipment(ctx, kuwaitShipment())
	require.NoError(t, err)
	assert.True(t, ok)

	twoBoxes := kuwaitShipment()
	twoBoxes.BoxQty = 2
	ok, _ = client.CanSendShipment(ctx, twoBoxes)
	assert.False(t, ok, "single box only")

	extraFee := kuwaitShipment()
	extraFee.Order.ShippingAddress.Country = "AE"
	extraFee.Order.ExtraFee = 15
	ok, _ = client.CanSendShipment(ctx, extraFee)
	assert.False(t, ok, "emirates with extra fee")

	highValue := kuwaitShipment()
	highValue.Order.ShippingAddress.Country = "AE"
	highValue.Order.Currency = "AED"
	highValue.Order.ShippedTotal = 1000
	ok, _ = client.CanSendShipment(ctx, highValue)
	assert.False(t, ok, "high value AED to emirates")

	lowValue := kuwaitShipment()
	lowValue.Order.ShippingAddress.Country = "AE"
	lowValue.Order.Currency = "AED"
	lowValue.Order.ShippedTotal = 999.99
	ok, _ = client.CanSendShipment(ctx, lowValue)
	assert.True(t, ok)

	pool.available = 0
	ok, _ = client.CanSendShipment(ctx, kuwaitShipment())
	assert.False(t, ok, "empty pool")
}

func TestClient_SendShipment(t *testing.T) {
	mockAPI := postaplus.NewMockAPIClient()
	pool := &stubPool{numbers: []string{"700100"}}
	client := newTestClient(mockAPI, pool)

	resp, err := client.SendShipment(context.Background(), &shipper.SendRequest{Shipment: kuwaitShipment(), Numbers: pool})

	require.NoError(t, err)
	assert.Equal(t, "700100", resp.TrackingNumber)

	sent := mockAPI.Sent()
	require.Len(t, sent, 1)
	info := sent[0]
	assert.Equal(t, int64(700100), info.WayBill)
	assert.Equal(t, "SRV3", info.CodeService)
	assert.Equal(t, "GSO", info.ClientInfo.CodeStation)
	assert.Equal(t, "320.00", info.CashOnDelivery)
	assert.Equal(t, "KWD", info.CashOnDeliveryCurrency)
	assert.Equal(t, "97140000000", info.ConnoteContact.TelMobile)
	assert.Equal(t, "KWT", info.Consignee.ToCodeCountry)
	assert.Equal(t, "NA", info.Consignee.ToCity)
	assert.Equal(t, "96555551234", info.Consignee.ToMobile)
	assert.Equal(t, "96555551234", info.Consignee.ToTelPhone)
	assert.Equal(t, "Fahad ,Office,", info.Consignee.ToName)
	assert.Equal(t, "Block 3, Street 5, Salmiya", info.Consignee.ToAddress)
	require.Len(t, info.ConnotePerformaInvoice, 1)
	assert.Equal(t, "160.000", info.ConnotePerformaInvoice[0].RateUnit)
	assert.Len(t, info.ItemDetails, 1)
}

func TestClient_SendShipment_InvalidPhoneIsFatal(t *testing.T) {
	mockAPI := postaplus.NewMockAPIClient()
	pool := &stubPool{numbers: []string{"700101"}}
	client := newTestClient(mockAPI, pool)
	s := kuwaitShipment()
	s.Order.ShippingAddress.Phone = "12"

	_, err := client.SendShipment(context.Background(), &shipper.SendRequest{Shipment: s, Numbers: pool})

	require.Error(t, err)
	assert.False(t, client.IsRetryable(err))
	assert.True(t, errors.Is(err, shipper.ErrInvalidAddress))
	var vErr *postaplus.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "ToMobile", vErr.Field)
	assert.Empty(t, mockAPI.Sent())
}

func TestClient_SendShipment_LongNameIsFatal(t *testing.T) {
	pool := &stubPool{numbers: []string{"700102"}}
	client := newTestClient(postaplus.NewMockAPIClient(), pool)
	s := kuwaitShipment()
	s.Order.ShippingAddress.FullName = "Abdulrahman Mohammed Abdullah Abdulaziz Al Saud Family"

	_, err := client.SendShipment(context.Background(), &shipper.SendRequest{Shipment: s, Numbers: pool})

	require.Error(t, err)
	assert.False(t, client.IsRetryable(err))
}

func TestClient_SendShipment_MismatchedEchoIsRetryable(t *testing.T) {
	mockAPI := postaplus.NewMockAPIClient()
	mockAPI.OnSpecialShipmentPackage = func(ctx context.Context, info *postaplus.ShipInfo) (string, error) {
		return "Invalid Account", nil
	}
	pool := &stubPool{numbers: []string{"700103"}}
	client := newTestClient(mockAPI, pool)

	_, err := client.SendShipment(context.Background(), &shipper.SendRequest{Shipment: kuwaitShipment(), Numbers: pool})

	require.Error(t, err)
	assert.True(t, client.IsRetryable(err))
}

func TestClient_SendShipment_TransportErrorIsRetryable(t *testing.T) {
	mockAPI := postaplus.NewMockAPIClient()
	mockAPI.SimulateErrors = true
	pool := &stubPool{numbers: []string{"700104"}}
	client := newTestClient(mockAPI, pool)

	_, err := client.SendShipment(context.Background(), &shipper.SendRequest{Shipment: kuwaitShipment(), Numbers: pool})

	require.Error(t, err)
	assert.True(t, client.IsRetryable(err))
}

func TestClient_Track(t *testing.T) {
	mockAPI := postaplus.NewMockAPIClient()
	mockAPI.OnShipmentTracking = func(ctx context.Context, q *postaplus.TrackingQuery) ([]postaplus.TrackShipment, error) {
		assert.Equal(t, "ACC1", q.ShipperAccount)
		switch q.AirwaybillNumber {
		case "700100":
			return []postaplus.TrackShipment{
				{Event: "DELIVERED", DateTime: "05/03/2024 14:20:00", Note: "Delivered"},
				{Event: "WC", DateTime: "05-03-2024", Note: "With courier"},
			}, nil
		default:
			return []postaplus.TrackShipment{{ErrorMsg: "Invalid Airwaybill"}}, nil
		}
	}
	client := newTestClient(mockAPI, &stubPool{})

	resp, err := client.Track(context.Background(), &shipper.TrackRequest{TrackingNumbers: []string{"700100", "999"}})

	require.NoError(t, err)
	assert.Equal(t, []string{"999"}, resp.Skipped)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "DELIVERED", resp.Events[0].Code)
	assert.Equal(t, time.Date(2024, 3, 5, 14, 20, 0, 0, time.UTC), resp.Events[0].Time)
}

func TestSOAPAPIClient_SpecialShipmentPackage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"http://tempuri.org/Special_Shipment_Package"`, r.Header.Get("SOAPAction"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<WayBill>700100</WayBill>")
		assert.Contains(t, string(body), "<CONNOTEPERMINV>")

		_, _ = w.Write([]byte(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>
<Special_Shipment_PackageResponse xmlns="http://tempuri.org/"><Special_Shipment_PackageResult>700100</Special_Shipment_PackageResult></Special_Shipment_PackageResponse>
</s:Body></s:Envelope>`))
	}))
	defer server.Close()

	api, err := postaplus.NewSOAPAPIClient(postaplus.SOAPAPIClientConfig{URL: server.URL})
	require.NoError(t, err)

	answer, err := api.SpecialShipmentPackage(context.Background(), &postaplus.ShipInfo{
		WayBill:                700100,
		ConnotePerformaInvoice: []postaplus.ConnotePerformaItem{{CodeHS: "6108390000"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "700100", answer)
}

func TestNewSOAPAPIClient_MissingCertificate(t *testing.T) {
	_, err := postaplus.NewSOAPAPIClient(postaplus.SOAPAPIClientConfig{CAFile: "/nonexistent/api-certificate.crt"})
	assert.Error(t, err)
}
