// Package notify publishes fire-and-forget notification jobs consumed by the
// customer messaging workers. Failures are logged and never returned.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/fulfillment/pkg/milestone"
)

// Kind identifies a notification job.
type Kind string

const (
	KindShipmentSent   Kind = "shipment_sent"
	KindMilestoneAdded Kind = "milestone_added"
	KindAWBPoolLow     Kind = "awb_pool_low"
)

// Message is the JSON body of a job.
type Message struct {
	ID             string              `json:"id"`
	Kind           Kind                `json:"kind"`
	CreatedAt      time.Time           `json:"created_at"`
	Carrier        string              `json:"carrier"`
	OrderCode      string              `json:"order_code,omitempty"`
	ShipmentID     int64               `json:"shipment_id,omitempty"`
	TrackingNumber string              `json:"tracking_number,omitempty"`
	Milestone      milestone.Milestone `json:"milestone,omitempty"`
	EventDate      *time.Time          `json:"event_date,omitempty"`
	Group          string              `json:"group,omitempty"`
	Remaining      *int                `json:"remaining,omitempty"`
	Limit          int                 `json:"limit,omitempty"`
}

// Publisher sends one message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Notifier turns domain events into jobs. A nil Notifier drops everything.
type Notifier struct {
	pub    Publisher
	topic  string
	logger *otelzap.Logger
	now    func() time.Time
}

// New creates a notifier writing to topic.
func New(pub Publisher, topic string, logger *otelzap.Logger) *Notifier {
	return &Notifier{pub: pub, topic: topic, logger: logger, now: time.Now}
}

// ShipmentSent announces a shipment registered with its carrier.
func (n *Notifier) ShipmentSent(ctx context.Context, shipmentID int64, orderCode, carrier, trackingNumber string) {
	n.publish(ctx, orderCode, Message{
		Kind:           KindShipmentSent,
		Carrier:        carrier,
		OrderCode:      orderCode,
		ShipmentID:     shipmentID,
		TrackingNumber: trackingNumber,
	})
}

// MilestoneAdded announces a customer visible milestone.
func (n *Notifier) MilestoneAdded(ctx context.Context, shipmentID int64, carrier, trackingNumber string, rec milestone.Record) {
	at := rec.EventDate.UTC()
	n.publish(ctx, trackingNumber, Message{
		Kind:           KindMilestoneAdded,
		Carrier:        carrier,
		ShipmentID:     shipmentID,
		TrackingNumber: trackingNumber,
		Milestone:      rec.Milestone,
		EventDate:      &at,
	})
}

// PoolLow warns that a tracking number pool runs dry.
func (n *Notifier) PoolLow(ctx context.Context, carrier, group string, remaining, limit int) {
	n.publish(ctx, carrier+":"+group, Message{
		Kind:      KindAWBPoolLow,
		Carrier:   carrier,
		Group:     group,
		Remaining: &remaining,
		Limit:     limit,
	})
}

func (n *Notifier) publish(ctx context.Context, key string, msg Message) {
	if n == nil || n.pub == nil {
		return
	}
	msg.ID = uuid.NewString()
	msg.CreatedAt = n.now().UTC()

	body, err := json.Marshal(msg)
	if err != nil {
		n.logger.Ctx(ctx).Error("notification encode failed", zap.String("kind", string(msg.Kind)), zap.Error(err))
		return
	}
	if err := n.pub.Publish(ctx, n.topic, []byte(key), body); err != nil {
		n.logger.Ctx(ctx).Error("notification publish failed",
			zap.String("kind", string(msg.Kind)),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
