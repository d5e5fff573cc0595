// Package servicepoint refreshes the pickup locations published by carriers.
package servicepoint

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/fulfillment/pkg/shipper"
)

// BatchSize is how many points are written per round trip.
const BatchSize = 250

// Replacer stores the full set of a carrier's points.
type Replacer interface {
	ReplaceServicePoints(ctx context.Context, carrier string, points []shipper.ServicePoint, batchSize int) (upserted, removed int, err error)
}

// Result summarizes one refresh.
type Result struct {
	Carrier  string
	Fetched  int
	Upserted int
	Removed  int
}

// Updater downloads and stores service points.
type Updater struct {
	registry *shipper.Registry
	store    Replacer
	logger   *otelzap.Logger
}

// NewUpdater creates an updater.
func NewUpdater(registry *shipper.Registry, store Replacer, logger *otelzap.Logger) *Updater {
	return &Updater{registry: registry, store: store, logger: logger}
}

// Update replaces the stored points of carrier with the ones it publishes
// now. Points without a code are dropped. An empty download is refused so a
// carrier outage does not wipe the table.
func (u *Updater) Update(ctx context.Context, carrier string) (*Result, error) {
	c, err := u.registry.Get(carrier)
	if err != nil {
		return nil, err
	}
	provider, ok := c.(shipper.ServicePointProvider)
	if !ok {
		return nil, fmt.Errorf("carrier %s does not publish service points", carrier)
	}

	points, err := provider.ServicePoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("download service points: %w", err)
	}

	valid := make([]shipper.ServicePoint, 0, len(points))
	for _, p := range points {
		p.Code = strings.TrimSpace(p.Code)
		if p.Code == "" {
			continue
		}
		p.Carrier = carrier
		valid = append(valid, p)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("carrier %s returned no service points", carrier)
	}

	upserted, removed, err := u.store.ReplaceServicePoints(ctx, carrier, valid, BatchSize)
	if err != nil {
		return nil, fmt.Errorf("store service points: %w", err)
	}

	res := &Result{Carrier: carrier, Fetched: len(points), Upserted: upserted, Removed: removed}
	u.logger.Ctx(ctx).Info("Service points updated",
		zap.String("carrier", carrier),
		zap.Int("fetched", res.Fetched),
		zap.Int("upserted", res.Upserted),
		zap.Int("removed", res.Removed),
	)
	return res, nil
}

// Carriers lists the registered carriers publishing service points.
func (u *Updater) Carriers() []string {
	var out []string
	for _, c := range u.registry.All() {
		if _, ok := c.(shipper.ServicePointProvider); ok {
			out = append(out, c.Name())
		}
	}
	return out
}
