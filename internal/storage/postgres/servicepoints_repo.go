package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/tournevent/fulfillment/pkg/shipper"
)

func (s *Storage) ReplaceServicePoints(ctx context.Context, carrier string, points []shipper.ServicePoint, batchSize int) (int, int, error) {
	if batchSize <= 0 {
		batchSize = len(points)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	codes := make([]string, 0, len(points))
	for start := 0; start < len(points); start += batchSize {
		end := min(start+batchSize, len(points))

		batch := &pgx.Batch{}
		for _, p := range points[start:end] {
			codes = append(codes, p.Code)
			batch.Queue(`
INSERT INTO service_points (
  carrier, code, name, country, city, address, address_ar, phone, latitude, longitude, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now())
ON CONFLICT (carrier, code)
DO UPDATE SET name = EXCLUDED.name, country = EXCLUDED.country, city = EXCLUDED.city,
              address = EXCLUDED.address, address_ar = EXCLUDED.address_ar, phone = EXCLUDED.phone,
              latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude, updated_at = now()
`, carrier, p.Code, p.Name, p.Country, p.City, p.Address, p.AddressAr, p.Phone, p.Latitude, p.Longitude)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, 0, errors.Wrap(err, "upsert service points")
		}
	}

	tag, err := tx.Exec(ctx, `
DELETE FROM service_points WHERE carrier = $1 AND NOT (code = ANY($2))
`, carrier, codes)
	if err != nil {
		return 0, 0, errors.Wrap(err, "delete stale service points")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, errors.Wrap(err, "commit tx")
	}
	return len(points), int(tag.RowsAffected()), nil
}
