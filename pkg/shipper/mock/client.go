// Package mock provides a programmable carrier implementation for testing.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

// Client is a mock carrier for testing. Zero-valued hooks fall back to an
// eligible carrier that always sends successfully.
type Client struct {
	name string

	OnCanSend func(shipment *shipper.Shipment) (bool, error)
	OnSend    func(req *shipper.SendRequest) (*shipper.SendResponse, error)
	OnResend  func(req *shipper.SendRequest) (*shipper.SendResponse, error)
	OnTrack   func(req *shipper.TrackRequest) (*shipper.TrackResponse, error)

	// UsePool makes sends draw their tracking number from the request's pool.
	UsePool bool

	mu      sync.Mutex
	sends   []int64
	resends []int64
}

// New creates a new mock carrier.
func New(name string) *Client {
	return &Client{name: name}
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return c.name
}

// CanSendShipment returns the OnCanSend answer, true by default.
func (c *Client) CanSendShipment(ctx context.Context, shipment *shipper.Shipment) (bool, error) {
	if c.OnCanSend != nil {
		return c.OnCanSend(shipment)
	}
	return true, nil
}

// CreateShippingDocument returns a placeholder PDF.
func (c *Client) CreateShippingDocument(ctx context.Context, shipment *shipper.Shipment) (*shipper.Document, error) {
	return c.document(shipper.DocumentShipping, shipment), nil
}

// CreateInvoiceDocument returns a placeholder PDF.
func (c *Client) CreateInvoiceDocument(ctx context.Context, shipment *shipper.Shipment) (*shipper.Document, error) {
	return c.document(shipper.DocumentInvoice, shipment), nil
}

// SendShipment records the call and returns the OnSend answer.
func (c *Client) SendShipment(ctx context.Context, req *shipper.SendRequest) (*shipper.SendResponse, error) {
	c.mu.Lock()
	c.sends = append(c.sends, req.Shipment.ID)
	c.mu.Unlock()

	if c.OnSend != nil {
		return c.OnSend(req)
	}
	return c.send(ctx, req)
}

// ResendShipment records the call and returns the OnResend answer.
func (c *Client) ResendShipment(ctx context.Context, req *shipper.SendRequest) (*shipper.SendResponse, error) {
	c.mu.Lock()
	c.resends = append(c.resends, req.Shipment.ID)
	c.mu.Unlock()

	if c.OnResend != nil {
		return c.OnResend(req)
	}
	return c.send(ctx, req)
}

// IsRetryable delegates to the shared predicate.
func (c *Client) IsRetryable(err error) bool {
	return shipper.IsRetryable(err)
}

// Track returns the OnTrack answer, no events by default.
func (c *Client) Track(ctx context.Context, req *shipper.TrackRequest) (*shipper.TrackResponse, error) {
	if c.OnTrack != nil {
		return c.OnTrack(req)
	}
	return &shipper.TrackResponse{}, nil
}

// BatchSize returns the number of tracking numbers accepted per call.
func (c *Client) BatchSize() int {
	return 10
}

// Sends returns the shipment ids passed to SendShipment.
func (c *Client) Sends() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.sends...)
}

// Resends returns the shipment ids passed to ResendShipment.
func (c *Client) Resends() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.resends...)
}

func (c *Client) send(ctx context.Context, req *shipper.SendRequest) (*shipper.SendResponse, error) {
	if c.UsePool {
		number, err := req.Numbers.Take(ctx, c.name, shipper.DefaultChannel)
		if err != nil {
			return nil, err
		}
		return &shipper.SendResponse{TrackingNumber: number}, nil
	}
	id := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return &shipper.SendResponse{TrackingNumber: fmt.Sprintf("MOCK%s", id[:12])}, nil
}

func (c *Client) document(kind shipper.DocumentKind, shipment *shipper.Shipment) *shipper.Document {
	return &shipper.Document{
		Kind:        kind,
		Variant:     shipper.WaybillVariant(shipment),
		ContentType: "application/pdf",
		Data:        []byte(fmt.Sprintf("%%PDF-1.4 %s %s %d", c.name, kind, shipment.ID)),
	}
}

var (
	_ shipper.Carrier = (*Client)(nil)
	_ shipper.Tracker = (*Client)(nil)
)
