package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/tournevent/fulfillment/internal/storage"
	"github.com/tournevent/fulfillment/pkg/milestone"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

func (s *Storage) Priorities(ctx context.Context, channel, country string) ([]storage.Priority, error) {
	rows, err := s.db.Query(ctx, `
SELECT channel, country, carrier, weight
FROM carrier_priorities
WHERE channel = $1 AND country = $2
ORDER BY weight DESC, carrier
`, channel, country)
	if err != nil {
		return nil, errors.Wrap(err, "select priorities")
	}
	defer rows.Close()

	var out []storage.Priority
	for rows.Next() {
		var p storage.Priority
		if err := rows.Scan(&p.Channel, &p.Country, &p.Carrier, &p.Weight); err != nil {
			return nil, errors.Wrap(err, "scan priority")
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) Shipment(ctx context.Context, id int64) (*shipper.Shipment, error) {
	var (
		sh     shipper.Shipment
		o      shipper.Order
		status string
	)
	err := s.db.QueryRow(ctx, `
SELECT
  s.id, s.tracking_number, s.carrier, s.box_qty, s.delivery_type, s.current_status,
  s.items, s.declared_value, s.cod_amount, s.shipped_date, s.delivered_date, s.label,
  o.id, o.code, o.channel, o.status, o.currency, o.base_currency, o.is_cod, o.email,
  o.shipping_address, o.shipping_method, o.selected_carrier, o.service_point_code,
  o.extra_fee, o.shipped_total, o.shipping_amount, o.document, o.delivered_date
FROM shipments s
JOIN orders o ON o.id = s.order_id
WHERE s.id = $1
`, id).Scan(
		&sh.ID, &sh.TrackingNumber, &sh.Carrier, &sh.BoxQty, &sh.DeliveryType, &status,
		&sh.Items, &sh.DeclaredValue, &sh.CODAmount, &sh.ShippedDate, &sh.DeliveredDate, &sh.Label,
		&o.ID, &o.Code, &o.Channel, &o.Status, &o.Currency, &o.BaseCurrency, &o.IsCOD, &o.Email,
		&o.ShippingAddress, &o.ShippingMethod, &o.SelectedCarrier, &o.ServicePointCode,
		&o.ExtraFee, &o.ShippedTotal, &o.ShippingAmount, &o.Document, &o.DeliveredDate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select shipment")
	}
	sh.CurrentStatus = milestone.Milestone(status)
	sh.Order = &o
	return &sh, nil
}

func (s *Storage) TrackingNumbers(ctx context.Context, carrier string, window storage.TrackingWindow) ([]string, error) {
	rows, err := s.db.Query(ctx, `
SELECT s.tracking_number
FROM shipments s
JOIN orders o ON o.id = s.order_id
WHERE s.carrier = $1
  AND s.tracking_number <> ''
  AND s.current_status NOT IN ($2, $3)
  AND s.shipped_date >= $4 AND s.shipped_date < $5
  AND o.status IN ($6, $7)
ORDER BY s.tracking_number
`, carrier, milestone.Delivered, milestone.Returned, window.From.UTC(), window.To.UTC(),
		shipper.OrderComplete, shipper.OrderNotDelivered)
	if err != nil {
		return nil, errors.Wrap(err, "select tracking numbers")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, errors.Wrap(err, "scan tracking number")
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) Milestones(ctx context.Context, shipmentID int64) ([]milestone.Record, error) {
	return milestones(ctx, s.db, shipmentID)
}

func milestones(ctx context.Context, q querier, shipmentID int64) ([]milestone.Record, error) {
	rows, err := q.Query(ctx, `
SELECT milestone, carrier_code, event_date, description, is_customer_view
FROM shipment_milestones
WHERE shipment_id = $1
ORDER BY event_date, carrier_code
`, shipmentID)
	if err != nil {
		return nil, errors.Wrap(err, "select milestones")
	}
	defer rows.Close()

	var out []milestone.Record
	for rows.Next() {
		var (
			r  milestone.Record
			ms string
		)
		if err := rows.Scan(&ms, &r.CarrierCode, &r.EventDate, &r.Description, &r.IsCustomerView); err != nil {
			return nil, errors.Wrap(err, "scan milestone")
		}
		r.Milestone = milestone.Milestone(ms)
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (t *txStore) MarkSent(ctx context.Context, shipmentID int64, carrier, trackingNumber string, label []byte, at time.Time) error {
	tag, err := t.q.Exec(ctx, `
UPDATE shipments
SET carrier = $2, tracking_number = $3, shipped_date = $4, label = COALESCE($5, label)
WHERE id = $1
`, shipmentID, carrier, trackingNumber, at.UTC(), label)
	if err != nil {
		return errors.Wrap(err, "mark shipment sent")
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *txStore) LiveShipment(ctx context.Context, carrier, trackingNumber string) (*storage.TrackedShipment, error) {
	var (
		sh     storage.TrackedShipment
		status string
	)
	err := t.q.QueryRow(ctx, `
SELECT id, order_id, carrier, tracking_number, current_status, delivered_date
FROM shipments
WHERE carrier = $1 AND tracking_number = $2 AND current_status NOT IN ($3, $4)
ORDER BY id
LIMIT 1
FOR UPDATE
`, carrier, trackingNumber, milestone.Delivered, milestone.Returned).Scan(
		&sh.ID, &sh.OrderID, &sh.Carrier, &sh.TrackingNumber, &status, &sh.DeliveredDate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select live shipment")
	}
	sh.Status = milestone.Milestone(status)

	sh.History, err = milestones(ctx, t.q, sh.ID)
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

func (t *txStore) AppendMilestones(ctx context.Context, shipmentID int64, records []milestone.Record) (int, error) {
	written := 0
	for _, r := range records {
		tag, err := t.q.Exec(ctx, `
INSERT INTO shipment_milestones (
  shipment_id, milestone, carrier_code, event_date, description, is_customer_view
)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (shipment_id, carrier_code, event_date) DO NOTHING
`, shipmentID, string(r.Milestone), r.CarrierCode, r.EventDate.UTC(), r.Description, r.IsCustomerView)
		if err != nil {
			return written, errors.Wrap(err, "insert milestone")
		}
		written += int(tag.RowsAffected())
	}
	return written, nil
}

func (t *txStore) SetStatus(ctx context.Context, shipmentID int64, status milestone.Milestone, deliveredDate *time.Time) error {
	_, err := t.q.Exec(ctx, `
UPDATE shipments SET current_status = $2, delivered_date = $3 WHERE id = $1
`, shipmentID, string(status), deliveredDate)
	return errors.Wrap(err, "update shipment status")
}

func (t *txStore) OrderShipments(ctx context.Context, orderID int64) ([]storage.ShipmentStatus, error) {
	rows, err := t.q.Query(ctx, `
SELECT id, current_status, delivered_date FROM shipments WHERE order_id = $1 ORDER BY id FOR UPDATE
`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "select order shipments")
	}
	defer rows.Close()

	var out []storage.ShipmentStatus
	for rows.Next() {
		var (
			st     storage.ShipmentStatus
			status string
		)
		if err := rows.Scan(&st.ID, &status, &st.DeliveredDate); err != nil {
			return nil, errors.Wrap(err, "scan order shipment")
		}
		st.Status = milestone.Milestone(status)
		out = append(out, st)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (t *txStore) MarkOrderDelivered(ctx context.Context, orderID int64, at time.Time) error {
	tag, err := t.q.Exec(ctx, `
UPDATE orders SET status = $2, delivered_date = $3 WHERE id = $1
`, orderID, shipper.OrderDelivered, at.UTC())
	if err != nil {
		return errors.Wrap(err, "mark order delivered")
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
