package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/fulfillment/internal/storage"
	"github.com/tournevent/fulfillment/internal/storage/memory"
	"github.com/tournevent/fulfillment/pkg/milestone"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

func TestStore_InTxRollsBack(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	st.AddNumbers("naqel", "default", "1", "2")
	st.AddShipment(&shipper.Shipment{ID: 1, Order: &shipper.Order{ID: 10}})

	boom := errors.New("boom")
	err := st.InTx(ctx, func(tx storage.Tx) error {
		_, err := tx.Take(ctx, "naqel", "default")
		require.NoError(t, err)
		require.NoError(t, tx.MarkSent(ctx, 1, "naqel", "1", nil, time.Now()))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	n, _ := st.Available(ctx, "naqel", "default")
	assert.Equal(t, 2, n)
	sh, err := st.Shipment(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, sh.TrackingNumber)
	assert.Equal(t, int64(10), sh.Order.ID)
}

func TestStore_TakeExhausted(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	err := st.InTx(ctx, func(tx storage.Tx) error {
		_, err := tx.Take(ctx, "aramex", "default")
		return err
	})

	assert.ErrorIs(t, err, shipper.ErrNumberPoolExhausted)
}

func TestStore_TrackingNumbers(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	shipped := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	complete := &shipper.Order{ID: 1, Status: shipper.OrderComplete}
	cancelled := &shipper.Order{ID: 2, Status: "cancelled"}

	st.AddShipment(&shipper.Shipment{ID: 1, Order: complete, Carrier: "dhl", TrackingNumber: "A", ShippedDate: &shipped})
	st.AddShipment(&shipper.Shipment{ID: 2, Order: complete, Carrier: "dhl", TrackingNumber: "B", ShippedDate: &shipped, CurrentStatus: milestone.Delivered})
	st.AddShipment(&shipper.Shipment{ID: 3, Order: cancelled, Carrier: "dhl", TrackingNumber: "C", ShippedDate: &shipped})
	st.AddShipment(&shipper.Shipment{ID: 4, Order: complete, Carrier: "smsa", TrackingNumber: "D", ShippedDate: &shipped})

	got, err := st.TrackingNumbers(ctx, "dhl", storage.TrackingWindow{From: shipped.AddDate(0, 0, -1), To: shipped.AddDate(0, 0, 1)})

	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, got)

	got, _ = st.TrackingNumbers(ctx, "dhl", storage.TrackingWindow{From: shipped.AddDate(0, 0, 1), To: shipped.AddDate(0, 0, 2)})
	assert.Empty(t, got)
}

func TestStore_LiveShipmentSkipsTerminal(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	st.AddShipment(&shipper.Shipment{ID: 1, Order: &shipper.Order{ID: 1}, Carrier: "dhl", TrackingNumber: "A", CurrentStatus: milestone.Returned})

	err := st.InTx(ctx, func(tx storage.Tx) error {
		_, err := tx.LiveShipment(ctx, "dhl", "A")
		return err
	})

	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_ReplaceServicePoints(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	_, _, err := st.ReplaceServicePoints(ctx, "smsa", []shipper.ServicePoint{{Code: "A"}, {Code: "B"}}, 250)
	require.NoError(t, err)

	upserted, removed, err := st.ReplaceServicePoints(ctx, "smsa", []shipper.ServicePoint{{Code: "B"}, {Code: "C"}}, 250)

	require.NoError(t, err)
	assert.Equal(t, 2, upserted)
	assert.Equal(t, 1, removed)
	points := st.ServicePoints("smsa")
	require.Len(t, points, 2)
	assert.Equal(t, "B", points[0].Code)
	assert.Equal(t, "C", points[1].Code)
}
