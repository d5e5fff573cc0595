package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/fulfillment/internal/storage"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

// DefaultWindow is how far back a polling pass looks by default.
const DefaultWindow = 30 * 24 * time.Hour

// TrackingNumberLister lists the shipments worth polling.
type TrackingNumberLister interface {
	TrackingNumbers(ctx context.Context, carrier string, window storage.TrackingWindow) ([]string, error)
}

// PollOptions narrows a polling pass. Explicit tracking numbers bypass the
// window. A zero To means tomorrow; a zero From means DefaultWindow before To.
type PollOptions struct {
	From            time.Time
	To              time.Time
	TrackingNumbers []string
}

// PollingSource asks carrier tracking APIs for events.
type PollingSource struct {
	lister   TrackingNumberLister
	registry *shipper.Registry
	logger   *otelzap.Logger
	now      func() time.Time
}

// NewPollingSource creates a source polling the registry's trackers.
func NewPollingSource(lister TrackingNumberLister, registry *shipper.Registry, logger *otelzap.Logger) *PollingSource {
	return &PollingSource{lister: lister, registry: registry, logger: logger, now: time.Now}
}

// Window resolves the dates a pass polls.
func (s *PollingSource) Window(opts PollOptions) storage.TrackingWindow {
	to := opts.To
	if to.IsZero() {
		y, m, d := s.now().UTC().Date()
		to = time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	}
	from := opts.From
	if from.IsZero() {
		from = to.Add(-DefaultWindow)
	}
	return storage.TrackingWindow{From: from, To: to}
}

// Fetch polls the carrier in chunks of its batch size. A failing chunk is
// logged and its tracking numbers reported as skipped.
func (s *PollingSource) Fetch(ctx context.Context, carrier string, opts PollOptions) (*shipper.TrackResponse, error) {
	tracker, err := s.registry.Tracker(carrier)
	if err != nil {
		return nil, err
	}

	numbers := opts.TrackingNumbers
	if len(numbers) == 0 {
		numbers, err = s.lister.TrackingNumbers(ctx, carrier, s.Window(opts))
		if err != nil {
			return nil, fmt.Errorf("list tracking numbers: %w", err)
		}
	}

	size := tracker.BatchSize()
	if size <= 0 {
		size = len(numbers)
	}

	out := &shipper.TrackResponse{}
	for start := 0; start < len(numbers); start += size {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		chunk := numbers[start:min(start+size, len(numbers))]

		resp, err := tracker.Track(ctx, &shipper.TrackRequest{TrackingNumbers: chunk})
		if err != nil {
			s.logger.Ctx(ctx).Error("Tracking request failed",
				zap.String("carrier", carrier),
				zap.Int("tracking_numbers", len(chunk)),
				zap.Error(err),
			)
			out.Skipped = append(out.Skipped, chunk...)
			continue
		}
		out.Events = append(out.Events, resp.Events...)
		out.Skipped = append(out.Skipped, resp.Skipped...)
	}
	return out, nil
}
