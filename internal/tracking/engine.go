// Package tracking turns raw carrier events into shipment timelines and
// delivery status.
package tracking

import (
	"context"
	"errors"
	"fmt"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tournevent/fulfillment/internal/notify"
	"github.com/tournevent/fulfillment/internal/storage"
	"github.com/tournevent/fulfillment/internal/telemetry"
	"github.com/tournevent/fulfillment/pkg/milestone"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

// Reasons events are dropped before ingestion.
const (
	DropUnmapped = "unmapped"
	DropUnknown  = "unknown_shipment"
)

// Report summarizes one ingestion pass.
type Report struct {
	Carrier         string
	Events          int
	Unmapped        int
	Shipments       int // tracking numbers with at least one mapped event
	Unknown         int // tracking numbers without a live shipment
	Appended        int
	Delivered       []int64
	OrdersDelivered int
	Failed          int
	Skipped         int // tracking numbers the carrier could not answer for
}

// Engine applies tracking events to shipments.
type Engine struct {
	store      storage.Store
	propagator *Propagator
	notifier   *notify.Notifier
	metrics    *telemetry.Metrics
	logger     *otelzap.Logger
	tracer     trace.Tracer
}

// NewEngine creates an engine. notifier and metrics may be nil.
func NewEngine(store storage.Store, propagator *Propagator, notifier *notify.Notifier, metrics *telemetry.Metrics, logger *otelzap.Logger, tracer trace.Tracer) *Engine {
	return &Engine{
		store:      store,
		propagator: propagator,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logger,
		tracer:     shipper.TracerOrNoop(tracer),
	}
}

type group struct {
	trackingNumber string
	records        []milestone.Record
}

// outcome is what one committed group produced.
type outcome struct {
	shipmentID     int64
	appended       []milestone.Record
	delivered      bool
	orderDelivered bool
}

// Ingest applies the events of one carrier. Events are grouped by tracking
// number and each group is written in its own transaction, so a failing
// shipment does not hold back the others. The returned error reports the
// groups that failed; the report is always filled.
func (e *Engine) Ingest(ctx context.Context, carrier string, events []shipper.RawEvent) (*Report, error) {
	ctx, span := e.tracer.Start(ctx, "tracking.Ingest")
	defer span.End()
	span.SetAttributes(attribute.String("carrier", carrier), attribute.Int("events", len(events)))

	log := e.logger.Ctx(ctx)
	report := &Report{Carrier: carrier, Events: len(events)}

	groups := e.group(ctx, carrier, events, report)
	e.metrics.DropEvents(carrier, DropUnmapped, report.Unmapped)

	var errs []error
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		out, err := e.apply(ctx, carrier, g)
		if errors.Is(err, storage.ErrNotFound) {
			report.Unknown++
			e.metrics.DropEvents(carrier, DropUnknown, len(g.records))
			log.Debug("No live shipment for tracking number",
				zap.String("carrier", carrier), zap.String("tracking_number", g.trackingNumber))
			continue
		}
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("%s: %w", g.trackingNumber, err))
			log.Error("Failed to apply tracking events",
				zap.String("carrier", carrier),
				zap.String("tracking_number", g.trackingNumber),
				zap.Error(err),
			)
			continue
		}

		report.Appended += len(out.appended)
		if out.delivered {
			report.Delivered = append(report.Delivered, out.shipmentID)
		}
		if out.orderDelivered {
			report.OrdersDelivered++
		}
		e.metrics.AddMilestones(carrier, len(out.appended))

		for _, rec := range out.appended {
			if rec.IsCustomerView {
				e.notifier.MilestoneAdded(ctx, out.shipmentID, carrier, g.trackingNumber, rec)
			}
		}
	}

	log.Info("Tracking events ingested",
		zap.String("carrier", carrier),
		zap.Int("events", report.Events),
		zap.Int("unmapped", report.Unmapped),
		zap.Int("shipments", report.Shipments),
		zap.Int("appended", report.Appended),
		zap.Int("delivered", len(report.Delivered)),
		zap.Int("failed", report.Failed),
	)

	if len(errs) > 0 {
		return report, fmt.Errorf("%d of %d shipments failed: %w", len(errs), len(groups), errors.Join(errs...))
	}
	return report, nil
}

// group maps raw codes and buckets the resulting records by tracking number,
// keeping the order tracking numbers first appear in.
func (e *Engine) group(ctx context.Context, carrier string, events []shipper.RawEvent, report *Report) []*group {
	log := e.logger.Ctx(ctx)
	byNumber := make(map[string]*group)
	var groups []*group

	for _, ev := range events {
		m, ok := milestone.Lookup(carrier, ev.Code)
		if !ok {
			report.Unmapped++
			log.Debug("Unmapped tracking code",
				zap.String("carrier", carrier),
				zap.String("tracking_number", ev.TrackingNumber),
				zap.String("code", ev.Code),
			)
			continue
		}

		g, ok := byNumber[ev.TrackingNumber]
		if !ok {
			g = &group{trackingNumber: ev.TrackingNumber}
			byNumber[ev.TrackingNumber] = g
			groups = append(groups, g)
		}
		g.records = append(g.records, milestone.NewRecord(m, ev.Code, ev.Time.UTC(), ev.Text))
	}
	report.Shipments = len(groups)
	return groups
}

func (e *Engine) apply(ctx context.Context, carrier string, g *group) (*outcome, error) {
	out := &outcome{}
	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		live, err := tx.LiveShipment(ctx, carrier, g.trackingNumber)
		if err != nil {
			return err
		}
		out.shipmentID = live.ID

		fresh := milestone.Dedup(live.History, g.records)
		if len(fresh) == 0 {
			return nil
		}
		milestone.Sort(fresh)

		if _, err := tx.AppendMilestones(ctx, live.ID, fresh); err != nil {
			return err
		}

		history := make([]milestone.Record, 0, len(live.History)+len(fresh))
		history = append(history, live.History...)
		history = append(history, fresh...)
		milestone.Sort(history)

		status := milestone.CurrentStatus(history)
		deliveredDate := live.DeliveredDate
		if at, ok := milestone.DeliveredAt(history); ok {
			deliveredDate = &at
		}
		if err := tx.SetStatus(ctx, live.ID, status, deliveredDate); err != nil {
			return err
		}

		out.appended = fresh
		out.delivered = milestone.IsDelivered(status) && !milestone.IsDelivered(live.Status)
		if out.delivered && e.propagator != nil {
			out.orderDelivered, err = e.propagator.Propagate(ctx, tx, live.OrderID)
			if err != nil {
				return fmt.Errorf("propagate delivery: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
