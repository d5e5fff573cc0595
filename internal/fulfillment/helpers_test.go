package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tournevent/fulfillment/internal/notify"
	"github.com/tournevent/fulfillment/internal/storage"
	"github.com/tournevent/fulfillment/internal/storage/memory"
	"github.com/tournevent/fulfillment/pkg/shipper"
	"github.com/tournevent/fulfillment/pkg/shipper/mock"
)

func internationalShipment(id int64) *shipper.Shipment {
	return &shipper.Shipment{
		ID:           id,
		BoxQty:       1,
		DeliveryType: shipper.DeliveryInternational,
		Order: &shipper.Order{
			ID:       id * 10,
			Code:     fmt.Sprintf("TV-%d", id),
			Channel:  "web",
			Status:   shipper.OrderComplete,
			Currency: "SAR",
			ShippingAddress: shipper.Address{
				City:    "Riyadh",
				Country: "SA",
			},
			ShippingMethod: shipper.MethodHomeDelivery,
		},
	}
}

func seedPriorities(st *memory.Store, weights map[string]int) {
	for carrier, w := range weights {
		st.SetPriority(storage.Priority{Channel: "web", Country: "SA", Carrier: carrier, Weight: w})
	}
}

func registryOf(carriers ...*mock.Client) *shipper.Registry {
	r := shipper.NewRegistry()
	for _, c := range carriers {
		r.Register(c)
	}
	return r
}

// capturePublisher records published notifications.
type capturePublisher struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (p *capturePublisher) Publish(ctx context.Context, topic string, key, value []byte) error {
	var m notify.Message
	if err := json.Unmarshal(value, &m); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, m)
	return nil
}

func (p *capturePublisher) kinds() []notify.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notify.Kind, 0, len(p.messages))
	for _, m := range p.messages {
		out = append(out, m.Kind)
	}
	return out
}
