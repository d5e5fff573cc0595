package tracking

import (
	"context"
	"fmt"

	"github.com/tournevent/fulfillment/pkg/shipper"
)

// Service runs tracking passes for registered carriers.
type Service struct {
	registry *shipper.Registry
	engine   *Engine
	polling  *PollingSource
	feed     *FileFeedSource
}

// NewService creates a service. feed may be nil when no carrier delivers
// tracking files.
func NewService(registry *shipper.Registry, engine *Engine, polling *PollingSource, feed *FileFeedSource) *Service {
	return &Service{registry: registry, engine: engine, polling: polling, feed: feed}
}

// Run performs one tracking pass for carrier. Carriers publishing a file
// feed are read from it; explicit tracking numbers always go through the
// polling API.
func (s *Service) Run(ctx context.Context, carrier string, opts PollOptions) (*Report, error) {
	c, err := s.registry.Get(carrier)
	if err != nil {
		return nil, err
	}

	if parser, ok := c.(shipper.FeedParser); ok && len(opts.TrackingNumbers) == 0 {
		return s.runFeed(ctx, carrier, parser)
	}
	if _, ok := c.(shipper.Tracker); !ok {
		return nil, fmt.Errorf("carrier %s has no tracking source", carrier)
	}

	resp, err := s.polling.Fetch(ctx, carrier, opts)
	if err != nil {
		return nil, err
	}
	report, err := s.engine.Ingest(ctx, carrier, resp.Events)
	if report != nil {
		report.Skipped = len(resp.Skipped)
	}
	return report, err
}

func (s *Service) runFeed(ctx context.Context, carrier string, parser shipper.FeedParser) (*Report, error) {
	if s.feed == nil {
		return nil, fmt.Errorf("carrier %s publishes a tracking feed but no feed source is configured", carrier)
	}
	fr, err := s.feed.Run(ctx, carrier, parser, func(ctx context.Context, events []shipper.RawEvent) (*Report, error) {
		return s.engine.Ingest(ctx, carrier, events)
	})
	if fr == nil {
		return nil, err
	}

	total := &Report{Carrier: carrier}
	for _, r := range fr.Reports {
		total.Events += r.Events
		total.Unmapped += r.Unmapped
		total.Shipments += r.Shipments
		total.Unknown += r.Unknown
		total.Appended += r.Appended
		total.Delivered = append(total.Delivered, r.Delivered...)
		total.OrdersDelivered += r.OrdersDelivered
		total.Failed += r.Failed
	}
	return total, err
}
