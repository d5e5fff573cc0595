// Package storage defines the persistence contract of the fulfillment
// service. Implementations live in the postgres and memory subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/tournevent/fulfillment/pkg/milestone"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// MaxTaskBatch bounds how many open tasks a resend pass loads per carrier.
const MaxTaskBatch = 200

// Priority is the weight of a carrier for a (channel, country) pair.
type Priority struct {
	Channel string
	Country string
	Carrier string
	Weight  int
}

// Task is a pending resend of a shipment whose first send failed.
type Task struct {
	ShipmentID int64
	Carrier    string
	Message    string
	Traceback  string
	UpdatedAt  time.Time
}

// TrackedShipment is a shipment loaded for milestone ingestion.
type TrackedShipment struct {
	ID             int64
	OrderID        int64
	Carrier        string
	TrackingNumber string
	Status         milestone.Milestone
	DeliveredDate  *time.Time
	History        []milestone.Record // ordered by event date
}

// ShipmentStatus is the delivery state of one shipment of an order.
type ShipmentStatus struct {
	ID            int64
	Status        milestone.Milestone
	DeliveredDate *time.Time
}

// TrackingWindow selects the shipments a tracking pass polls.
type TrackingWindow struct {
	From time.Time
	To   time.Time
}

// Store is the read side plus the entry point to transactions.
type Store interface {
	shipper.NumberCounter

	// Priorities returns the weights for a channel and country, highest first.
	Priorities(ctx context.Context, channel, country string) ([]Priority, error)

	// Shipment loads a shipment with its order and items.
	Shipment(ctx context.Context, id int64) (*shipper.Shipment, error)

	// OpenTasks lists pending resend tasks of a carrier, oldest first.
	OpenTasks(ctx context.Context, carrier string, limit int) ([]Task, error)

	// TrackingNumbers lists the tracking numbers of non-terminal shipments of
	// a carrier shipped inside the window whose order is complete or not
	// delivered.
	TrackingNumbers(ctx context.Context, carrier string, window TrackingWindow) ([]string, error)

	// Milestones returns the timeline of a shipment.
	Milestones(ctx context.Context, shipmentID int64) ([]milestone.Record, error)

	// ReplaceServicePoints upserts points in batches keyed by code and removes
	// the carrier's points absent from the list.
	ReplaceServicePoints(ctx context.Context, carrier string, points []shipper.ServicePoint, batchSize int) (upserted, removed int, err error)

	// InTx runs fn in a transaction committed when fn returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write side, bound to one transaction.
type Tx interface {
	shipper.NumberTaker

	// MarkSent records the carrier, tracking number and carrier-issued
	// label of a shipment. A nil label keeps the stored one.
	MarkSent(ctx context.Context, shipmentID int64, carrier, trackingNumber string, label []byte, at time.Time) error

	// UpsertTask creates or replaces the task of a shipment.
	UpsertTask(ctx context.Context, task Task) error

	// DeleteTask removes the task of a shipment if any.
	DeleteTask(ctx context.Context, shipmentID int64) error

	// LiveShipment locks and loads the shipment of a carrier tracking number.
	// It returns ErrNotFound when the shipment is unknown or terminal.
	LiveShipment(ctx context.Context, carrier, trackingNumber string) (*TrackedShipment, error)

	// AppendMilestones inserts records, ignoring duplicates, and reports how
	// many were written.
	AppendMilestones(ctx context.Context, shipmentID int64, records []milestone.Record) (int, error)

	// SetStatus stores the projected status of a shipment.
	SetStatus(ctx context.Context, shipmentID int64, status milestone.Milestone, deliveredDate *time.Time) error

	// OrderShipments returns the delivery state of every shipment of an order.
	OrderShipments(ctx context.Context, orderID int64) ([]ShipmentStatus, error)

	// MarkOrderDelivered sets the order status to delivered.
	MarkOrderDelivered(ctx context.Context, orderID int64, at time.Time) error
}
