// Package documents renders labels and invoices through the document
// service.
package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tournevent/fulfillment/pkg/shipper"
)

// Client calls the document service.
// POST {base}/render/{kind}/{variant} with the shipment as JSON; the answer
// is the rendered file.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a document service client.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type renderRequest struct {
	ShipmentID     int64                  `json:"shipment_id"`
	OrderCode      string                 `json:"order_code"`
	Channel        string                 `json:"channel"`
	Carrier        string                 `json:"carrier,omitempty"`
	TrackingNumber string                 `json:"tracking_number,omitempty"`
	BoxQty         int                    `json:"box_qty"`
	Currency       string                 `json:"currency"`
	DeclaredValue  float64                `json:"declared_value"`
	CODAmount      float64                `json:"cod_amount"`
	Address        shipper.Address        `json:"address"`
	Items          []shipper.Item         `json:"items"`
	ShippingMethod shipper.ShippingMethod `json:"shipping_method"`
}

// Render asks the service for one document.
func (c *Client) Render(ctx context.Context, kind shipper.DocumentKind, variant string, shipment *shipper.Shipment) (*shipper.Document, error) {
	order := shipment.Order
	body, err := json.Marshal(renderRequest{
		ShipmentID:     shipment.ID,
		OrderCode:      order.Code,
		Channel:        order.Channel,
		Carrier:        shipment.Carrier,
		TrackingNumber: shipment.TrackingNumber,
		BoxQty:         shipment.BoxQty,
		Currency:       order.Currency,
		DeclaredValue:  shipment.DeclaredValue,
		CODAmount:      shipment.CODAmount,
		Address:        order.ShippingAddress,
		Items:          shipment.Items,
		ShippingMethod: order.ShippingMethod,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal render request: %w", err)
	}

	url := fmt.Sprintf("%s/render/%s/%s", c.baseURL, kind, variant)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("document service not available: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("render %s/%s: HTTP %d: %s", kind, variant, resp.StatusCode, data)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}
	return &shipper.Document{Kind: kind, Variant: variant, ContentType: contentType, Data: data}, nil
}

// Placeholder renders a minimal PDF locally. It backs the mock mode.
type Placeholder struct{}

// Render returns a one-line PDF naming the document.
func (Placeholder) Render(ctx context.Context, kind shipper.DocumentKind, variant string, shipment *shipper.Shipment) (*shipper.Document, error) {
	data := fmt.Sprintf("%%PDF-1.4\n%% %s %s shipment %d\n%%%%EOF", kind, variant, shipment.ID)
	return &shipper.Document{Kind: kind, Variant: variant, ContentType: "application/pdf", Data: []byte(data)}, nil
}

var (
	_ shipper.DocumentRenderer = (*Client)(nil)
	_ shipper.DocumentRenderer = Placeholder{}
)
