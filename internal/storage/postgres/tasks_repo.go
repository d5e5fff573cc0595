package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/tournevent/fulfillment/internal/storage"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

// numberWindow is how many of the oldest free numbers a take picks from.
// Picking randomly inside it keeps concurrent dispatchers off the same row.
const numberWindow = 200

func (s *Storage) OpenTasks(ctx context.Context, carrier string, limit int) ([]storage.Task, error) {
	if limit <= 0 || limit > storage.MaxTaskBatch {
		limit = storage.MaxTaskBatch
	}

	rows, err := s.db.Query(ctx, `
SELECT shipment_id, carrier, message, traceback, updated_at
FROM order_shipping_tasks
WHERE carrier = $1
ORDER BY updated_at, shipment_id
LIMIT $2
`, carrier, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select tasks")
	}
	defer rows.Close()

	var out []storage.Task
	for rows.Next() {
		var t storage.Task
		if err := rows.Scan(&t.ShipmentID, &t.Carrier, &t.Message, &t.Traceback, &t.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan task")
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) Available(ctx context.Context, carrier, group string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
SELECT count(*) FROM carrier_numbers WHERE carrier = $1 AND number_group = $2 AND used_at IS NULL
`, carrier, group).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count carrier numbers")
	}
	return n, nil
}

func (t *txStore) Take(ctx context.Context, carrier, group string) (string, error) {
	var number string
	err := t.q.QueryRow(ctx, `
WITH picked AS (
  SELECT id FROM (
    SELECT id FROM carrier_numbers
    WHERE carrier = $1 AND number_group = $2 AND used_at IS NULL
    ORDER BY id
    LIMIT $3
    FOR UPDATE SKIP LOCKED
  ) window_rows
  ORDER BY random()
  LIMIT 1
)
UPDATE carrier_numbers n
SET used_at = now()
FROM picked
WHERE n.id = picked.id
RETURNING n.number
`, carrier, group, numberWindow).Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shipper.ErrNumberPoolExhausted
	}
	if err != nil {
		return "", errors.Wrap(err, "take carrier number")
	}
	return number, nil
}

func (t *txStore) UpsertTask(ctx context.Context, task storage.Task) error {
	_, err := t.q.Exec(ctx, `
INSERT INTO order_shipping_tasks (shipment_id, carrier, message, traceback, created_at, updated_at)
VALUES ($1,$2,$3,$4, now(), now())
ON CONFLICT (shipment_id)
DO UPDATE SET carrier = EXCLUDED.carrier, message = EXCLUDED.message,
              traceback = EXCLUDED.traceback, updated_at = now()
`, task.ShipmentID, task.Carrier, task.Message, task.Traceback)
	return errors.Wrap(err, "upsert task")
}

func (t *txStore) DeleteTask(ctx context.Context, shipmentID int64) error {
	_, err := t.q.Exec(ctx, `DELETE FROM order_shipping_tasks WHERE shipment_id = $1`, shipmentID)
	return errors.Wrap(err, "delete task")
}
