package postgres

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS carrier_priorities (
  channel TEXT NOT NULL,
  country TEXT NOT NULL,
  carrier TEXT NOT NULL,
  weight INT NOT NULL DEFAULT 0,
  UNIQUE (channel, country, carrier)
)`,
		`
CREATE TABLE IF NOT EXISTS carrier_numbers (
  id BIGSERIAL PRIMARY KEY,
  carrier TEXT NOT NULL,
  number_group TEXT NOT NULL DEFAULT 'default',
  number TEXT NOT NULL,
  used_at TIMESTAMPTZ NULL,
  UNIQUE (carrier, number)
)`,
		`CREATE INDEX IF NOT EXISTS idx_carrier_numbers_free ON carrier_numbers(carrier, number_group, id) WHERE used_at IS NULL`,
		`
CREATE TABLE IF NOT EXISTS orders (
  id BIGSERIAL PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  channel TEXT NOT NULL,
  status TEXT NOT NULL,
  currency TEXT NOT NULL,
  base_currency TEXT NOT NULL DEFAULT '',
  is_cod BOOLEAN NOT NULL DEFAULT FALSE,
  email TEXT NOT NULL DEFAULT '',
  shipping_address JSONB NOT NULL,
  shipping_method TEXT NOT NULL,
  selected_carrier TEXT NOT NULL DEFAULT '',
  service_point_code TEXT NOT NULL DEFAULT '',
  extra_fee NUMERIC(12,2) NOT NULL DEFAULT 0,
  shipped_total NUMERIC(12,2) NOT NULL DEFAULT 0,
  shipping_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
  document JSONB NULL,
  delivered_date TIMESTAMPTZ NULL
)`,
		`
CREATE TABLE IF NOT EXISTS shipments (
  id BIGSERIAL PRIMARY KEY,
  order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  tracking_number TEXT NOT NULL DEFAULT '',
  carrier TEXT NOT NULL DEFAULT '',
  box_qty INT NOT NULL DEFAULT 1,
  delivery_type TEXT NOT NULL,
  current_status TEXT NOT NULL DEFAULT '',
  items JSONB NOT NULL DEFAULT '[]',
  declared_value NUMERIC(12,2) NOT NULL DEFAULT 0,
  cod_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
  shipped_date TIMESTAMPTZ NULL,
  delivered_date TIMESTAMPTZ NULL,
  label BYTEA NULL
)`,
		`ALTER TABLE shipments ADD COLUMN IF NOT EXISTS label BYTEA NULL`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_carrier_tracking ON shipments(carrier, tracking_number)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_order_id ON shipments(order_id)`,
		`
CREATE TABLE IF NOT EXISTS shipment_milestones (
  id BIGSERIAL PRIMARY KEY,
  shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
  milestone TEXT NOT NULL,
  carrier_code TEXT NOT NULL,
  event_date TIMESTAMPTZ NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  is_customer_view BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (shipment_id, carrier_code, event_date)
)`,
		`
CREATE TABLE IF NOT EXISTS order_shipping_tasks (
  shipment_id BIGINT PRIMARY KEY REFERENCES shipments(id) ON DELETE CASCADE,
  carrier TEXT NOT NULL,
  message TEXT NOT NULL,
  traceback TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`
CREATE TABLE IF NOT EXISTS service_points (
  carrier TEXT NOT NULL,
  code TEXT NOT NULL,
  name TEXT NOT NULL,
  country TEXT NOT NULL,
  city TEXT NOT NULL DEFAULT '',
  address TEXT NOT NULL DEFAULT '',
  address_ar TEXT NOT NULL DEFAULT '',
  phone TEXT NOT NULL DEFAULT '',
  latitude DOUBLE PRECISION NOT NULL DEFAULT 0,
  longitude DOUBLE PRECISION NOT NULL DEFAULT 0,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (carrier, code)
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
