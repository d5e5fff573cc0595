package tracking

import (
	"context"
	"time"

	"github.com/tournevent/fulfillment/internal/storage"
	"github.com/tournevent/fulfillment/pkg/milestone"
)

// Propagator lifts shipment delivery onto the order.
type Propagator struct {
	now func() time.Time
}

// NewPropagator creates a propagator.
func NewPropagator() *Propagator {
	return &Propagator{now: time.Now}
}

// Propagate marks the order delivered when every one of its shipments is
// delivered. The order's delivered date is the latest shipment delivered
// date. It reports whether the order was updated.
func (p *Propagator) Propagate(ctx context.Context, tx storage.Tx, orderID int64) (bool, error) {
	shipments, err := tx.OrderShipments(ctx, orderID)
	if err != nil {
		return false, err
	}
	if len(shipments) == 0 {
		return false, nil
	}

	var latest time.Time
	for _, s := range shipments {
		if !milestone.IsDelivered(s.Status) {
			return false, nil
		}
		if s.DeliveredDate != nil && s.DeliveredDate.After(latest) {
			latest = *s.DeliveredDate
		}
	}
	if latest.IsZero() {
		latest = p.now().UTC()
	}

	if err := tx.MarkOrderDelivered(ctx, orderID, latest); err != nil {
		return false, err
	}
	return true, nil
}
