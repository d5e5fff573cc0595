// Package memory is an in-memory storage.Store used by tests and the
// mock mode of the CLI.
package memory

import (
	"bytes"
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/tournevent/fulfillment/internal/storage"
	"github.com/tournevent/fulfillment/pkg/milestone"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

// numberWindow is how many of the oldest free numbers a take picks from.
const numberWindow = 200

type poolKey struct{ carrier, group string }

type state struct {
	priorities []storage.Priority
	orders     map[int64]shipper.Order
	shipments  map[int64]shipper.Shipment
	orderOf    map[int64]int64
	milestones map[int64][]milestone.Record
	numbers    map[poolKey][]string
	tasks      map[int64]storage.Task
	points     map[string]map[string]shipper.ServicePoint
}

func newState() state {
	return state{
		orders:     make(map[int64]shipper.Order),
		shipments:  make(map[int64]shipper.Shipment),
		orderOf:    make(map[int64]int64),
		milestones: make(map[int64][]milestone.Record),
		numbers:    make(map[poolKey][]string),
		tasks:      make(map[int64]storage.Task),
		points:     make(map[string]map[string]shipper.ServicePoint),
	}
}

func (s state) clone() state {
	c := newState()
	c.priorities = append(c.priorities, s.priorities...)
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.shipments {
		c.shipments[k] = v
	}
	for k, v := range s.orderOf {
		c.orderOf[k] = v
	}
	for k, v := range s.milestones {
		c.milestones[k] = append([]milestone.Record(nil), v...)
	}
	for k, v := range s.numbers {
		c.numbers[k] = append([]string(nil), v...)
	}
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	for carrier, pts := range s.points {
		m := make(map[string]shipper.ServicePoint, len(pts))
		for k, v := range pts {
			m[k] = v
		}
		c.points[carrier] = m
	}
	return c
}

// Store keeps every table in maps guarded by one mutex. Transactions hold
// the mutex for their whole duration and restore a snapshot on failure, so
// a transaction callback must not call back into the Store.
type Store struct {
	mu    sync.Mutex
	state state
	now   func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{state: newState(), now: time.Now}
}

// ============================================================================
// Seeding and inspection
// ============================================================================

// AddShipment stores a shipment and its order.
func (s *Store) AddShipment(shipment *shipper.Shipment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if shipment.Order != nil {
		s.state.orders[shipment.Order.ID] = *shipment.Order
		s.state.orderOf[shipment.ID] = shipment.Order.ID
	}
	v := *shipment
	v.Order = nil
	s.state.shipments[shipment.ID] = v
}

// SetPriority adds or replaces the weight of a carrier.
func (s *Store) SetPriority(p storage.Priority) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.state.priorities {
		if cur.Channel == p.Channel && cur.Country == p.Country && cur.Carrier == p.Carrier {
			s.state.priorities[i] = p
			return
		}
	}
	s.state.priorities = append(s.state.priorities, p)
}

// AddNumbers appends free tracking numbers to a pool.
func (s *Store) AddNumbers(carrier, group string, numbers ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := poolKey{carrier, group}
	s.state.numbers[k] = append(s.state.numbers[k], numbers...)
}

// Order returns a copy of an order.
func (s *Store) Order(id int64) (shipper.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	return o, ok
}

// Task returns the task of a shipment.
func (s *Store) Task(shipmentID int64) (storage.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.state.tasks[shipmentID]
	return t, ok
}

// ServicePoints returns the stored points of a carrier ordered by code.
func (s *Store) ServicePoints(carrier string) []shipper.ServicePoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]shipper.ServicePoint, 0, len(s.state.points[carrier]))
	for _, p := range s.state.points[carrier] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ============================================================================
// storage.Store
// ============================================================================

// Available counts the free numbers of a pool.
func (s *Store) Available(ctx context.Context, carrier, group string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.numbers[poolKey{carrier, group}]), nil
}

// Priorities returns the weights of a channel and country, highest first.
func (s *Store) Priorities(ctx context.Context, channel, country string) ([]storage.Priority, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Priority
	for _, p := range s.state.priorities {
		if p.Channel == channel && p.Country == country {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Carrier < out[j].Carrier
	})
	return out, nil
}

// Shipment loads a shipment with its order.
func (s *Store) Shipment(ctx context.Context, id int64) (*shipper.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state.shipments[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if orderID, ok := s.state.orderOf[id]; ok {
		o := s.state.orders[orderID]
		v.Order = &o
	}
	return &v, nil
}

// OpenTasks lists the tasks of a carrier, oldest first.
func (s *Store) OpenTasks(ctx context.Context, carrier string, limit int) ([]storage.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Task
	for _, t := range s.state.tasks {
		if t.Carrier == carrier {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ShipmentID < out[j].ShipmentID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TrackingNumbers lists the pollable tracking numbers of a carrier.
func (s *Store) TrackingNumbers(ctx context.Context, carrier string, window storage.TrackingWindow) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, sh := range s.state.shipments {
		if sh.Carrier != carrier || sh.TrackingNumber == "" || milestone.IsTerminal(sh.CurrentStatus) {
			continue
		}
		if sh.ShippedDate == nil || sh.ShippedDate.Before(window.From) || !sh.ShippedDate.Before(window.To) {
			continue
		}
		o := s.state.orders[s.state.orderOf[id]]
		if o.Status != shipper.OrderComplete && o.Status != shipper.OrderNotDelivered {
			continue
		}
		out = append(out, sh.TrackingNumber)
	}
	sort.Strings(out)
	return out, nil
}

// Milestones returns the timeline of a shipment.
func (s *Store) Milestones(ctx context.Context, shipmentID int64) ([]milestone.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]milestone.Record(nil), s.state.milestones[shipmentID]...), nil
}

// ReplaceServicePoints swaps the points of a carrier.
func (s *Store) ReplaceServicePoints(ctx context.Context, carrier string, points []shipper.ServicePoint, batchSize int) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fresh := make(map[string]shipper.ServicePoint, len(points))
	for _, p := range points {
		fresh[p.Code] = p
	}
	removed := 0
	for code := range s.state.points[carrier] {
		if _, ok := fresh[code]; !ok {
			removed++
		}
	}
	s.state.points[carrier] = fresh
	return len(fresh), removed, nil
}

// InTx runs fn against the store and rolls back its writes if it fails.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.state.clone()
	if err := fn(&tx{s: s}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// ============================================================================
// storage.Tx
// ============================================================================

type tx struct {
	s *Store
}

func (t *tx) Take(ctx context.Context, carrier, group string) (string, error) {
	k := poolKey{carrier, group}
	free := t.s.state.numbers[k]
	if len(free) == 0 {
		return "", shipper.ErrNumberPoolExhausted
	}
	i := rand.IntN(min(len(free), numberWindow))
	number := free[i]
	t.s.state.numbers[k] = append(free[:i:i], free[i+1:]...)
	return number, nil
}

func (t *tx) MarkSent(ctx context.Context, shipmentID int64, carrier, trackingNumber string, label []byte, at time.Time) error {
	sh, ok := t.s.state.shipments[shipmentID]
	if !ok {
		return storage.ErrNotFound
	}
	sh.Carrier = carrier
	sh.TrackingNumber = trackingNumber
	if label != nil {
		sh.Label = bytes.Clone(label)
	}
	sh.ShippedDate = &at
	t.s.state.shipments[shipmentID] = sh
	return nil
}

func (t *tx) UpsertTask(ctx context.Context, task storage.Task) error {
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = t.s.now()
	}
	t.s.state.tasks[task.ShipmentID] = task
	return nil
}

func (t *tx) DeleteTask(ctx context.Context, shipmentID int64) error {
	delete(t.s.state.tasks, shipmentID)
	return nil
}

func (t *tx) LiveShipment(ctx context.Context, carrier, trackingNumber string) (*storage.TrackedShipment, error) {
	for id, sh := range t.s.state.shipments {
		if sh.Carrier != carrier || sh.TrackingNumber != trackingNumber {
			continue
		}
		if milestone.IsTerminal(sh.CurrentStatus) {
			return nil, storage.ErrNotFound
		}
		history := append([]milestone.Record(nil), t.s.state.milestones[id]...)
		milestone.Sort(history)
		return &storage.TrackedShipment{
			ID:             id,
			OrderID:        t.s.state.orderOf[id],
			Carrier:        sh.Carrier,
			TrackingNumber: sh.TrackingNumber,
			Status:         sh.CurrentStatus,
			DeliveredDate:  sh.DeliveredDate,
			History:        history,
		}, nil
	}
	return nil, storage.ErrNotFound
}

func (t *tx) AppendMilestones(ctx context.Context, shipmentID int64, records []milestone.Record) (int, error) {
	fresh := milestone.Dedup(t.s.state.milestones[shipmentID], records)
	t.s.state.milestones[shipmentID] = append(t.s.state.milestones[shipmentID], fresh...)
	return len(fresh), nil
}

func (t *tx) SetStatus(ctx context.Context, shipmentID int64, status milestone.Milestone, deliveredDate *time.Time) error {
	sh, ok := t.s.state.shipments[shipmentID]
	if !ok {
		return storage.ErrNotFound
	}
	sh.CurrentStatus = status
	sh.DeliveredDate = deliveredDate
	t.s.state.shipments[shipmentID] = sh
	return nil
}

func (t *tx) OrderShipments(ctx context.Context, orderID int64) ([]storage.ShipmentStatus, error) {
	var out []storage.ShipmentStatus
	for id, o := range t.s.state.orderOf {
		if o != orderID {
			continue
		}
		sh := t.s.state.shipments[id]
		out = append(out, storage.ShipmentStatus{ID: id, Status: sh.CurrentStatus, DeliveredDate: sh.DeliveredDate})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) MarkOrderDelivered(ctx context.Context, orderID int64, at time.Time) error {
	o, ok := t.s.state.orders[orderID]
	if !ok {
		return storage.ErrNotFound
	}
	o.Status = shipper.OrderDelivered
	o.DeliveredDate = &at
	t.s.state.orders[orderID] = o
	return nil
}

var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*tx)(nil)
)
