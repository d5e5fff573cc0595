package milestone

import (
	"sort"
	"time"
)

// Record is one milestone on a shipment timeline.
type Record struct {
	Milestone      Milestone
	CarrierCode    string
	EventDate      time.Time
	Description    string
	IsCustomerView bool
}

// Key is the natural identity of a record. Two records with the same key
// are the same carrier event.
type Key struct {
	CarrierCode string
	EventDate   int64
}

// Key returns the dedup key of the record.
func (r Record) Key() Key {
	return Key{CarrierCode: r.CarrierCode, EventDate: r.EventDate.UTC().UnixNano()}
}

// NewRecord builds a record carrying the catalog attributes of m.
func NewRecord(m Milestone, code string, at time.Time, description string) Record {
	return Record{
		Milestone:      m,
		CarrierCode:    code,
		EventDate:      at,
		Description:    description,
		IsCustomerView: m.IsCustomerView(),
	}
}

// Less orders records by event date, then carrier code.
func Less(a, b Record) bool {
	if !a.EventDate.Equal(b.EventDate) {
		return a.EventDate.Before(b.EventDate)
	}
	return a.CarrierCode < b.CarrierCode
}

// Sort orders records chronologically in place.
func Sort(records []Record) {
	sort.SliceStable(records, func(i, j int) bool { return Less(records[i], records[j]) })
}

// CurrentStatus projects an ordered timeline onto a shipment status.
// Delivered and returned are absorbing; otherwise the latest milestone wins.
// An empty timeline yields the empty status.
func CurrentStatus(history []Record) Milestone {
	var last Milestone
	returned := false
	for _, r := range history {
		if IsDelivered(r.Milestone) {
			return Delivered
		}
		if r.Milestone == Returned {
			returned = true
		}
		last = r.Milestone
	}
	if returned {
		return Returned
	}
	return last
}

// DeliveredAt returns the event date of the first delivered milestone.
func DeliveredAt(history []Record) (time.Time, bool) {
	for _, r := range history {
		if IsDelivered(r.Milestone) {
			return r.EventDate, true
		}
	}
	return time.Time{}, false
}

// Dedup drops candidates whose key already exists in persisted or earlier in
// candidates, preserving order.
func Dedup(persisted, candidates []Record) []Record {
	seen := make(map[Key]struct{}, len(persisted)+len(candidates))
	for _, r := range persisted {
		seen[r.Key()] = struct{}{}
	}
	out := make([]Record, 0, len(candidates))
	for _, r := range candidates {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
