package shipper_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/fulfillment/pkg/shipper"
	"github.com/tournevent/fulfillment/pkg/shipper/mock"
)

func TestRegistry_Register(t *testing.T) {
	registry := shipper.NewRegistry()

	registry.Register(mock.New("dhl"))

	got, err := registry.Get("dhl")
	require.NoError(t, err, "carrier should be registered")
	assert.Equal(t, "dhl", got.Name())
}

func TestRegistry_Register_Override(t *testing.T) {
	registry := shipper.NewRegistry()

	registry.Register(mock.New("dhl"))
	assert.Equal(t, 1, registry.Count())

	// Register again with same name should override
	registry.Register(mock.New("dhl"))
	assert.Equal(t, 1, registry.Count())
}

func TestRegistry_Get_NotFound(t *testing.T) {
	registry := shipper.NewRegistry()

	_, err := registry.Get("nonexistent")
	assert.Error(t, err, "should return error for unregistered carrier")
	assert.True(t, errors.Is(err, shipper.ErrCarrierNotFound))
}

func TestRegistry_NamesSorted(t *testing.T) {
	registry := shipper.NewRegistry()

	registry.Register(mock.New("smsa"))
	registry.Register(mock.New("aramex"))
	registry.Register(mock.New("naqel"))

	assert.Equal(t, []string{"aramex", "naqel", "smsa"}, registry.Names())

	all := registry.All()
	require.Len(t, all, 3)
	assert.Equal(t, "aramex", all[0].Name())
}

func TestRegistry_Tracker(t *testing.T) {
	registry := shipper.NewRegistry()
	registry.Register(mock.New("dhl"))

	tr, err := registry.Tracker("dhl")
	require.NoError(t, err)
	assert.Equal(t, 10, tr.BatchSize())

	_, err = registry.Tracker("fedex")
	assert.True(t, errors.Is(err, shipper.ErrCarrierNotFound))
}

func TestRegistry_CheckEligibility(t *testing.T) {
	registry := shipper.NewRegistry()

	eligible := mock.New("dhl")

	refusing := mock.New("naqel")
	refusing.OnCanSend = func(*shipper.Shipment) (bool, error) { return false, nil }

	failing := mock.New("smsa")
	failing.OnCanSend = func(*shipper.Shipment) (bool, error) { return true, errors.New("city list unavailable") }

	panicking := mock.New("postaplus")
	panicking.OnCanSend = func(*shipper.Shipment) (bool, error) { panic("nil address") }

	for _, c := range []*mock.Client{eligible, refusing, failing, panicking} {
		registry.Register(c)
	}

	shipment := &shipper.Shipment{ID: 1, Order: &shipper.Order{Code: "A1"}}
	names := []string{"smsa", "dhl", "postaplus", "naqel", "fedex"}

	results := registry.CheckEligibility(context.Background(), shipment, names)

	require.Len(t, results, len(names))
	for i, name := range names {
		assert.Equal(t, name, results[i].Carrier, "results keep input order")
	}

	assert.False(t, results[0].Eligible)
	assert.Error(t, results[0].Err)

	assert.True(t, results[1].Eligible)
	assert.NoError(t, results[1].Err)

	assert.False(t, results[2].Eligible)
	assert.ErrorContains(t, results[2].Err, "panicked")

	assert.False(t, results[3].Eligible)
	assert.NoError(t, results[3].Err)

	assert.False(t, results[4].Eligible)
	assert.True(t, errors.Is(results[4].Err, shipper.ErrCarrierNotFound))
}
