package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/fulfillment/internal/notify"
	"github.com/tournevent/fulfillment/internal/storage"
	"github.com/tournevent/fulfillment/internal/storage/memory"
	"github.com/tournevent/fulfillment/internal/telemetry"
	"github.com/tournevent/fulfillment/pkg/milestone"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

var day = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type harness struct {
	store     *memory.Store
	engine    *Engine
	metrics   *telemetry.Metrics
	published *capturePublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := otelzap.New(zap.NewNop())
	h := &harness{
		store:     memory.New(),
		metrics:   telemetry.NewMetrics(prometheus.NewRegistry()),
		published: &capturePublisher{},
	}
	notifier := notify.New(h.published, "notifications", logger)
	h.engine = NewEngine(h.store, NewPropagator(), notifier, h.metrics, logger, nil)
	return h
}

// addSent seeds a shipment already registered with carrier.
func (h *harness) addSent(id, orderID int64, carrier, trackingNumber string) {
	shipped := day.Add(-48 * time.Hour)
	h.store.AddShipment(&shipper.Shipment{
		ID:             id,
		Carrier:        carrier,
		TrackingNumber: trackingNumber,
		ShippedDate:    &shipped,
		DeliveryType:   shipper.DeliveryInternational,
		Order: &shipper.Order{
			ID:     orderID,
			Code:   "TV-100",
			Status: shipper.OrderComplete,
		},
	})
}

func (h *harness) shipment(t *testing.T, id int64) *shipper.Shipment {
	t.Helper()
	sh, err := h.store.Shipment(context.Background(), id)
	require.NoError(t, err)
	return sh
}

func (h *harness) history(t *testing.T, id int64) []milestone.Record {
	t.Helper()
	recs, err := h.store.Milestones(context.Background(), id)
	require.NoError(t, err)
	return recs
}

func ev(tn, code string, at time.Time) shipper.RawEvent {
	return shipper.RawEvent{TrackingNumber: tn, Code: code, Time: at, Text: code}
}

func TestEngine_DHLDelivered(t *testing.T) {
	h := newHarness(t)
	h.addSent(1, 100, "dhl", "1234567890")

	delivered := day.Add(5 * time.Hour)
	report, err := h.engine.Ingest(context.Background(), "dhl", []shipper.RawEvent{
		ev("1234567890", "PL", day),
		ev("1234567890", "OK", delivered),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Appended)
	assert.Equal(t, []int64{1}, report.Delivered)
	assert.Equal(t, 1, report.OrdersDelivered)

	sh := h.shipment(t, 1)
	assert.Equal(t, milestone.Delivered, sh.CurrentStatus)
	require.NotNil(t, sh.DeliveredDate)
	assert.True(t, delivered.Equal(*sh.DeliveredDate))

	order, ok := h.store.Order(100)
	require.True(t, ok)
	assert.Equal(t, shipper.OrderDelivered, order.Status)
	require.NotNil(t, order.DeliveredDate)
	assert.True(t, delivered.Equal(*order.DeliveredDate))

	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.MilestonesIngested.WithLabelValues("dhl")))
	assert.Equal(t, []notify.Kind{notify.KindMilestoneAdded, notify.KindMilestoneAdded}, h.published.kinds())
}

func TestEngine_UnmappedCodeIsNoop(t *testing.T) {
	h := newHarness(t)
	h.addSent(1, 100, "dhl", "1234567890")

	report, err := h.engine.Ingest(context.Background(), "dhl", []shipper.RawEvent{
		ev("1234567890", "ZZZ", day),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Unmapped)
	assert.Zero(t, report.Shipments)
	assert.Empty(t, h.history(t, 1))
	assert.Equal(t, milestone.Milestone(""), h.shipment(t, 1).CurrentStatus)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsDropped.WithLabelValues("dhl", DropUnmapped)))
	assert.Empty(t, h.published.kinds())
}

func TestEngine_IngestIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.addSent(1, 100, "dhl", "1234567890")

	events := []shipper.RawEvent{
		ev("1234567890", "PL", day),
		ev("1234567890", "AF", day.Add(time.Hour)),
		ev("1234567890", "AF", day.Add(time.Hour)),
	}
	first, err := h.engine.Ingest(context.Background(), "dhl", events)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Appended)
	after := h.history(t, 1)

	status := h.shipment(t, 1).CurrentStatus
	require.Equal(t, milestone.DepartedCountryOfOrigin, status)

	second, err := h.engine.Ingest(context.Background(), "dhl", events)
	require.NoError(t, err)
	assert.Zero(t, second.Appended)
	assert.Equal(t, after, h.history(t, 1))
	assert.Equal(t, status, h.shipment(t, 1).CurrentStatus)
	assert.Nil(t, h.shipment(t, 1).DeliveredDate)
}

// failingStore fails the status write of one shipment after its milestones
// were appended in the same transaction.
type failingStore struct {
	*memory.Store
	shipmentID int64
	err        error
}

func (s *failingStore) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.Store.InTx(ctx, func(tx storage.Tx) error {
		return fn(&failingTx{Tx: tx, store: s})
	})
}

type failingTx struct {
	storage.Tx
	store *failingStore
}

func (t *failingTx) SetStatus(ctx context.Context, shipmentID int64, status milestone.Milestone, deliveredDate *time.Time) error {
	if shipmentID == t.store.shipmentID {
		return t.store.err
	}
	return t.Tx.SetStatus(ctx, shipmentID, status, deliveredDate)
}

func TestEngine_FailedGroupKeepsOtherGroups(t *testing.T) {
	h := newHarness(t)
	h.addSent(1, 100, "dhl", "1111111111")
	h.addSent(2, 200, "dhl", "2222222222")
	h.addSent(3, 300, "dhl", "3333333333")

	boom := errors.New("connection reset")
	store := &failingStore{Store: h.store, shipmentID: 2, err: boom}
	engine := NewEngine(store, NewPropagator(), nil, h.metrics, otelzap.New(zap.NewNop()), nil)

	report, err := engine.Ingest(context.Background(), "dhl", []shipper.RawEvent{
		ev("1111111111", "PL", day),
		ev("1111111111", "OK", day.Add(time.Hour)),
		ev("2222222222", "PL", day),
		ev("2222222222", "OK", day.Add(time.Hour)),
		ev("3333333333", "PL", day),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "2222222222")

	assert.Equal(t, 3, report.Shipments)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, report.Appended)
	assert.Equal(t, []int64{1}, report.Delivered)

	assert.Len(t, h.history(t, 1), 2)
	assert.Equal(t, milestone.Delivered, h.shipment(t, 1).CurrentStatus)
	order, ok := h.store.Order(100)
	require.True(t, ok)
	assert.Equal(t, shipper.OrderDelivered, order.Status)

	assert.Empty(t, h.history(t, 2))
	assert.Equal(t, milestone.Milestone(""), h.shipment(t, 2).CurrentStatus)
	assert.Nil(t, h.shipment(t, 2).DeliveredDate)

	assert.Len(t, h.history(t, 3), 1)
	assert.Equal(t, milestone.ReceivedByCarrier, h.shipment(t, 3).CurrentStatus)
}

func TestEngine_AppendsChronologically(t *testing.T) {
	h := newHarness(t)
	h.addSent(1, 100, "dhl", "1234567890")

	_, err := h.engine.Ingest(context.Background(), "dhl", []shipper.RawEvent{
		ev("1234567890", "WC", day.Add(3*time.Hour)),
		ev("1234567890", "PL", day),
		ev("1234567890", "CR", day.Add(2*time.Hour)),
		ev("1234567890", "AF", day.Add(2*time.Hour)),
	})
	require.NoError(t, err)

	history := h.history(t, 1)
	require.Len(t, history, 4)
	codes := make([]string, len(history))
	for i, r := range history {
		codes[i] = r.CarrierCode
	}
	assert.Equal(t, []string{"PL", "AF", "CR", "WC"}, codes)
	assert.Equal(t, milestone.OutForDelivery, h.shipment(t, 1).CurrentStatus)
}

func TestEngine_TerminalShipmentIsImmutable(t *testing.T) {
	h := newHarness(t)
	h.addSent(1, 100, "dhl", "1234567890")

	_, err := h.engine.Ingest(context.Background(), "dhl", []shipper.RawEvent{ev("1234567890", "OK", day)})
	require.NoError(t, err)
	before := h.history(t, 1)
	deliveredDate := *h.shipment(t, 1).DeliveredDate

	report, err := h.engine.Ingest(context.Background(), "dhl", []shipper.RawEvent{
		ev("1234567890", "RT", day.Add(24*time.Hour)),
		ev("1234567890", "OK", day.Add(48*time.Hour)),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Unknown)
	assert.Zero(t, report.Appended)
	assert.Equal(t, before, h.history(t, 1))
	sh := h.shipment(t, 1)
	assert.Equal(t, milestone.Delivered, sh.CurrentStatus)
	assert.True(t, deliveredDate.Equal(*sh.DeliveredDate))
}

func TestEngine_OrderDeliveredOnlyWhenAllShipmentsDelivered(t *testing.T) {
	h := newHarness(t)
	h.addSent(1, 100, "dhl", "111")
	h.addSent(2, 100, "dhl", "222")

	report, err := h.engine.Ingest(context.Background(), "dhl", []shipper.RawEvent{ev("111", "OK", day)})
	require.NoError(t, err)
	assert.Zero(t, report.OrdersDelivered)
	order, _ := h.store.Order(100)
	assert.Equal(t, shipper.OrderComplete, order.Status)

	later := day.Add(30 * time.Hour)
	report, err = h.engine.Ingest(context.Background(), "dhl", []shipper.RawEvent{ev("222", "OK", later)})
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrdersDelivered)

	order, _ = h.store.Order(100)
	assert.Equal(t, shipper.OrderDelivered, order.Status)
	require.NotNil(t, order.DeliveredDate)
	assert.True(t, later.Equal(*order.DeliveredDate))
}

func TestEngine_UnknownTrackingNumber(t *testing.T) {
	h := newHarness(t)
	h.addSent(1, 100, "dhl", "111")

	report, err := h.engine.Ingest(context.Background(), "dhl", []shipper.RawEvent{
		ev("999", "PL", day),
		ev("111", "PL", day),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Shipments)
	assert.Equal(t, 1, report.Unknown)
	assert.Equal(t, 1, report.Appended)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsDropped.WithLabelValues("dhl", DropUnknown)))
}

func TestEngine_NotifiesCustomerViewOnly(t *testing.T) {
	h := newHarness(t)
	h.addSent(1, 100, "dhl", "111")

	_, err := h.engine.Ingest(context.Background(), "dhl", []shipper.RawEvent{
		ev("111", "ES", day),                  // added to manifest, internal
		ev("111", "PL", day.Add(time.Minute)), // received by carrier
	})
	require.NoError(t, err)
	assert.Equal(t, []notify.Kind{notify.KindMilestoneAdded}, h.published.kinds())
	assert.Equal(t, milestone.ReceivedByCarrier, h.published.messages[0].Milestone)
}
