package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tournevent/fulfillment/internal/cache/rediscache"
	"github.com/tournevent/fulfillment/internal/notify"
	"github.com/tournevent/fulfillment/internal/storage"
	"github.com/tournevent/fulfillment/internal/telemetry"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

const (
	opSend   = "send"
	opResend = "resend"
)

// OrderLocker serializes work on one order across processes.
type OrderLocker interface {
	Acquire(ctx context.Context, key string) (*rediscache.Lock, error)
}

// Deps are the collaborators of a Dispatcher. Only Store and Registry are
// required.
type Deps struct {
	Store    storage.Store
	Registry *shipper.Registry
	Locker   OrderLocker
	Pool     *PoolMonitor
	Notifier *notify.Notifier
	Metrics  *telemetry.Metrics
}

// Dispatcher registers shipments with carriers and keeps the resend queue.
type Dispatcher struct {
	deps     Deps
	selector *Selector
	logger   *otelzap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(deps Deps, selector *Selector, logger *otelzap.Logger, tracer trace.Tracer) *Dispatcher {
	return &Dispatcher{
		deps:     deps,
		selector: selector,
		logger:   logger,
		tracer:   shipper.TracerOrNoop(tracer),
		now:      time.Now,
	}
}

// Result describes a successful dispatch.
type Result struct {
	ShipmentID     int64
	OrderCode      string
	Carrier        string
	TrackingNumber string
	Candidates     []string
}

// Dispatch selects a carrier for the shipment and sends it. When carrier is
// set it must be one of the eligible carriers; otherwise the selector's first
// choice is used.
func (d *Dispatcher) Dispatch(ctx context.Context, shipmentID int64, carrier string) (*Result, error) {
	ctx, span := d.tracer.Start(ctx, "fulfillment.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.Int64("shipment_id", shipmentID))

	sh, err := d.deps.Store.Shipment(ctx, shipmentID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrShipmentNotFound, shipmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load shipment %d: %w", shipmentID, err)
	}
	if sh.Order == nil {
		return nil, fmt.Errorf("shipment %d has no order", shipmentID)
	}
	if sh.TrackingNumber != "" {
		return nil, fmt.Errorf("%w: %d has %s", ErrAlreadySent, shipmentID, sh.TrackingNumber)
	}

	var res *Result
	err = d.withOrderLock(ctx, sh.Order.Code, func() error {
		candidates, err := d.candidates(ctx, sh)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return fmt.Errorf("%w: shipment %d", ErrNoEligibleCarrier, shipmentID)
		}

		chosen := candidates[0]
		if carrier != "" {
			if !slices.Contains(candidates, carrier) {
				return fmt.Errorf("%w: %s", ErrCarrierNotEligible, carrier)
			}
			chosen = carrier
		}
		c, err := d.deps.Registry.Get(chosen)
		if err != nil {
			return err
		}

		tn, err := d.send(ctx, opSend, c, sh)
		if err != nil {
			return err
		}
		res = &Result{
			ShipmentID:     sh.ID,
			OrderCode:      sh.Order.Code,
			Carrier:        chosen,
			TrackingNumber: tn,
			Candidates:     candidates,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("carrier", res.Carrier))
	return res, nil
}

// candidates lists the carriers able to send the shipment. Local shipments
// are offered to every registered carrier.
func (d *Dispatcher) candidates(ctx context.Context, sh *shipper.Shipment) ([]string, error) {
	if sh.IsLocal() {
		return d.selector.LocalServices(ctx, sh), nil
	}
	return d.selector.Select(ctx, sh)
}

// ResendFailure is one task a resend pass could not clear.
type ResendFailure struct {
	ShipmentID int64
	Err        error
}

// ResendReport summarizes a resend pass.
type ResendReport struct {
	Carrier   string
	Attempted int
	Sent      int
	Failures  []ResendFailure
}

// ResendShipments retries the open tasks of a carrier, oldest first, up to
// storage.MaxTaskBatch of them. With abortOnError the first failure stops the
// pass and is returned; otherwise failures are collected in the report.
func (d *Dispatcher) ResendShipments(ctx context.Context, carrier string, abortOnError bool) (*ResendReport, error) {
	ctx, span := d.tracer.Start(ctx, "fulfillment.ResendShipments")
	defer span.End()
	span.SetAttributes(attribute.String("carrier", carrier))

	c, err := d.deps.Registry.Get(carrier)
	if err != nil {
		return nil, err
	}
	tasks, err := d.deps.Store.OpenTasks(ctx, carrier, storage.MaxTaskBatch)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	report := &ResendReport{Carrier: carrier}
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Attempted++

		err := d.resendOne(ctx, c, task.ShipmentID)
		if err == nil {
			report.Sent++
			continue
		}
		report.Failures = append(report.Failures, ResendFailure{ShipmentID: task.ShipmentID, Err: err})
		if abortOnError {
			return report, err
		}
	}

	d.logger.Ctx(ctx).Info("Resend pass finished",
		zap.String("carrier", carrier),
		zap.Int("attempted", report.Attempted),
		zap.Int("sent", report.Sent),
		zap.Int("failed", len(report.Failures)),
	)
	return report, nil
}

func (d *Dispatcher) resendOne(ctx context.Context, c shipper.Carrier, shipmentID int64) error {
	sh, err := d.deps.Store.Shipment(ctx, shipmentID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %d", ErrShipmentNotFound, shipmentID)
	}
	if err != nil {
		return fmt.Errorf("load shipment %d: %w", shipmentID, err)
	}
	if sh.Order == nil {
		return fmt.Errorf("shipment %d has no order", shipmentID)
	}
	return d.withOrderLock(ctx, sh.Order.Code, func() error {
		_, err := d.send(ctx, opResend, c, sh)
		return err
	})
}

// send registers the shipment in one transaction: numbers taken from the pool
// are released again when the carrier fails. Retryable failures leave a task
// behind for the next resend pass.
func (d *Dispatcher) send(ctx context.Context, op string, c shipper.Carrier, sh *shipper.Shipment) (string, error) {
	carrier := c.Name()
	log := d.logger.Ctx(ctx)
	start := d.now()

	var (
		trackingNumber string
		taker          *recordingTaker
	)
	err := d.deps.Store.InTx(ctx, func(tx storage.Tx) error {
		taker = &recordingTaker{NumberTaker: tx}
		req := &shipper.SendRequest{Shipment: sh, Numbers: taker}

		var (
			resp *shipper.SendResponse
			err  error
		)
		if op == opResend {
			resp, err = c.ResendShipment(ctx, req)
		} else {
			resp, err = c.SendShipment(ctx, req)
		}
		if err != nil {
			return err
		}
		if resp == nil || resp.TrackingNumber == "" {
			return shipper.Fatal(carrier, "EMPTY_TRACKING_NUMBER", "carrier returned no tracking number")
		}

		if err := tx.MarkSent(ctx, sh.ID, carrier, resp.TrackingNumber, resp.Label, d.now().UTC()); err != nil {
			return err
		}
		if err := tx.DeleteTask(ctx, sh.ID); err != nil {
			return err
		}
		trackingNumber = resp.TrackingNumber
		return nil
	})
	elapsed := d.now().Sub(start).Seconds()

	if err != nil {
		retryable := c.IsRetryable(err)
		log.Error("Shipment send failed",
			zap.String("operation", op),
			zap.String("carrier", carrier),
			zap.Int64("shipment_id", sh.ID),
			zap.String("order_code", sh.Order.Code),
			zap.Bool("retryable", retryable),
			zap.Error(err),
		)
		d.deps.Metrics.RecordError(carrier, errorCode(err))

		if !retryable {
			d.deps.Metrics.RecordDispatch(op, carrier, telemetry.OutcomeFatal, elapsed)
			return "", err
		}
		d.deps.Metrics.RecordDispatch(op, carrier, telemetry.OutcomeRetryable, elapsed)

		task := storage.Task{
			ShipmentID: sh.ID,
			Carrier:    carrier,
			Message:    err.Error(),
			Traceback:  fmt.Sprintf("%+v", err),
		}
		if terr := d.deps.Store.InTx(ctx, func(tx storage.Tx) error {
			return tx.UpsertTask(ctx, task)
		}); terr != nil {
			log.Error("Failed to save shipping task",
				zap.Int64("shipment_id", sh.ID), zap.Error(terr))
			return "", fmt.Errorf("%w (task not saved: %v)", err, terr)
		}
		return "", err
	}

	d.deps.Metrics.RecordDispatch(op, carrier, telemetry.OutcomeSent, elapsed)
	log.Info("Shipment sent",
		zap.String("operation", op),
		zap.String("carrier", carrier),
		zap.Int64("shipment_id", sh.ID),
		zap.String("order_code", sh.Order.Code),
		zap.String("tracking_number", trackingNumber),
	)

	d.deps.Notifier.ShipmentSent(ctx, sh.ID, sh.Order.Code, carrier, trackingNumber)
	for _, k := range taker.taken {
		d.deps.Pool.Check(ctx, k.carrier, k.group)
	}
	return trackingNumber, nil
}

func (d *Dispatcher) withOrderLock(ctx context.Context, orderCode string, fn func() error) error {
	if d.deps.Locker == nil {
		return fn()
	}
	lock, err := d.deps.Locker.Acquire(ctx, "dispatch:"+orderCode)
	if err != nil {
		return err
	}
	if lock == nil {
		return fmt.Errorf("%w: %s", ErrOrderLocked, orderCode)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			d.logger.Ctx(ctx).Warn("Failed to release order lock",
				zap.String("order_code", orderCode), zap.Error(err))
		}
	}()
	return fn()
}

func errorCode(err error) string {
	var se *shipper.ShipperError
	if errors.As(err, &se) && se.Code != "" {
		return se.Code
	}
	return "UNKNOWN"
}

type poolKey struct {
	carrier string
	group   string
}

// recordingTaker remembers the pools a send drew from.
type recordingTaker struct {
	shipper.NumberTaker
	taken []poolKey
}

func (r *recordingTaker) Take(ctx context.Context, carrier, group string) (string, error) {
	number, err := r.NumberTaker.Take(ctx, carrier, group)
	if err == nil {
		r.taken = append(r.taken, poolKey{carrier, group})
	}
	return number, err
}
