// Package shipper provides an abstraction layer for shipping carriers.
package shipper

import (
	"context"
	"io"
	"time"
)

// Carrier defines the interface that all shipping carriers must implement.
type Carrier interface {
	// Name returns the carrier identifier (e.g., "dhl", "naqel", "smsa").
	Name() string

	// CanSendShipment reports whether the carrier accepts the shipment.
	// Implementations answer false for unknown destinations rather than failing.
	CanSendShipment(ctx context.Context, shipment *Shipment) (bool, error)

	// CreateShippingDocument renders the label attached to the parcel.
	CreateShippingDocument(ctx context.Context, shipment *Shipment) (*Document, error)

	// CreateInvoiceDocument renders the commercial invoice.
	CreateInvoiceDocument(ctx context.Context, shipment *Shipment) (*Document, error)

	// SendShipment registers the shipment with the carrier.
	SendShipment(ctx context.Context, req *SendRequest) (*SendResponse, error)

	// ResendShipment retries a shipment whose first send failed.
	ResendShipment(ctx context.Context, req *SendRequest) (*SendResponse, error)

	// IsRetryable reports whether err belongs to the carrier's retryable set.
	IsRetryable(err error) bool
}

// Tracker is implemented by carriers that expose a polling tracking API.
type Tracker interface {
	// Track fetches raw tracking events for up to BatchSize tracking numbers.
	Track(ctx context.Context, req *TrackRequest) (*TrackResponse, error)

	// BatchSize is the maximum number of tracking numbers per Track call.
	BatchSize() int
}

// FeedParser is implemented by carriers that deliver tracking as files.
type FeedParser interface {
	// FeedDir is the remote directory the carrier drops files into.
	FeedDir() string

	// ParseFeed reads one feed file. Rows that cannot be parsed are skipped.
	ParseFeed(name string, r io.Reader) ([]RawEvent, error)
}

// ServicePointProvider is implemented by carriers that publish pickup locations.
type ServicePointProvider interface {
	ServicePoints(ctx context.Context) ([]ServicePoint, error)
}

// NumberCounter reports how many pre-allocated tracking numbers remain.
type NumberCounter interface {
	Available(ctx context.Context, carrier, group string) (int, error)
}

// NumberTaker consumes one pre-allocated tracking number. Implementations are
// bound to the dispatch transaction so a failed send releases the number.
type NumberTaker interface {
	Take(ctx context.Context, carrier, group string) (string, error)
}

// Cache stores small carrier lookups such as city lists between runs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Deps are the collaborators shared by carrier clients.
type Deps struct {
	Numbers   NumberCounter
	Documents DocumentRenderer
	Cache     Cache
}
