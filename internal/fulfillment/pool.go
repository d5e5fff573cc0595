package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/fulfillment/internal/notify"
	"github.com/tournevent/fulfillment/internal/telemetry"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

const poolWarningWindow = time.Hour

// Throttler limits how often a keyed event fires.
type Throttler interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// PoolMonitor warns when a tracking number pool runs low.
type PoolMonitor struct {
	numbers  shipper.NumberCounter
	limits   map[string]int
	throttle Throttler
	notifier *notify.Notifier
	metrics  *telemetry.Metrics
	logger   *otelzap.Logger
}

// NewPoolMonitor creates a monitor. limits holds the awb warning limit of
// each carrier; a carrier without a positive limit is never reported.
// A nil throttle reports on every check.
func NewPoolMonitor(numbers shipper.NumberCounter, limits map[string]int, throttle Throttler, notifier *notify.Notifier, metrics *telemetry.Metrics, logger *otelzap.Logger) *PoolMonitor {
	return &PoolMonitor{
		numbers:  numbers,
		limits:   limits,
		throttle: throttle,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// Check counts the remaining numbers of a pool after a take.
func (m *PoolMonitor) Check(ctx context.Context, carrier, group string) {
	if m == nil {
		return
	}
	log := m.logger.Ctx(ctx)

	remaining, err := m.numbers.Available(ctx, carrier, group)
	if err != nil {
		log.Error("Failed to count tracking numbers",
			zap.String("carrier", carrier), zap.String("group", group), zap.Error(err))
		return
	}
	m.metrics.SetNumbersRemaining(carrier, group, remaining)

	limit := m.limits[carrier]
	if limit <= 0 || remaining >= limit {
		return
	}

	log.Warn("Tracking number pool is running low",
		zap.String("carrier", carrier),
		zap.String("group", group),
		zap.Int("remaining", remaining),
		zap.Int("limit", limit),
	)

	if m.throttle != nil {
		ok, _, err := m.throttle.Allow(ctx, fmt.Sprintf("awb-warning:%s:%s", carrier, group), 1, poolWarningWindow)
		if err != nil {
			log.Error("Pool warning throttle failed", zap.String("carrier", carrier), zap.Error(err))
			return
		}
		if !ok {
			return
		}
	}
	m.notifier.PoolLow(ctx, carrier, group, remaining, limit)
}
