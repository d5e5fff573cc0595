package documents_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tournevent/fulfillment/internal/documents"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

func shipment() *shipper.Shipment {
	return &shipper.Shipment{
		ID:     9,
		BoxQty: 1,
		Order: &shipper.Order{
			Code: "TV-9", Channel: "web", Currency: "SAR",
			ShippingAddress: shipper.Address{City: "Riyadh", Country: "SA"},
		},
	}
}

func TestClient_Render(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/render/shipping/sa", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "TV-9", body["order_code"])

		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer server.Close()

	doc, err := documents.New(server.URL+"/", 0).Render(context.Background(), shipper.DocumentShipping, shipper.VariantSaudi, shipment())

	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(doc.Data))
	assert.Equal(t, shipper.VariantSaudi, doc.Variant)
}

func TestClient_RenderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown variant", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	_, err := documents.New(server.URL, 0).Render(context.Background(), shipper.DocumentInvoice, "nope", shipment())

	assert.ErrorContains(t, err, "HTTP 422")
}

func TestPlaceholder_Render(t *testing.T) {
	doc, err := documents.Placeholder{}.Render(context.Background(), shipper.DocumentInvoice, shipper.VariantBase, shipment())

	require.NoError(t, err)
	assert.Contains(t, string(doc.Data), "invoice base shipment 9")
}
