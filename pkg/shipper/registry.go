package shipper

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registry manages registered shipping carriers.
type Registry struct {
	carriers map[string]Carrier
	mu       sync.RWMutex
}

// NewRegistry creates a new carrier registry.
func NewRegistry() *Registry {
	return &Registry{
		carriers: make(map[string]Carrier),
	}
}

// Register adds a carrier to the registry.
func (r *Registry) Register(c Carrier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carriers[c.Name()] = c
}

// Get returns a carrier by name.
func (r *Registry) Get(name string) (Carrier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.carriers[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrCarrierNotFound, name)
}

// Tracker returns the polling tracker of a carrier.
func (r *Registry) Tracker(name string) (Tracker, error) {
	c, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	t, ok := c.(Tracker)
	if !ok {
		return nil, fmt.Errorf("carrier %s does not support tracking", name)
	}
	return t, nil
}

// All returns all registered carriers ordered by name.
func (r *Registry) All() []Carrier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Carrier, 0, len(r.carriers))
	for _, c := range r.carriers {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// Names returns the sorted names of all registered carriers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.carriers))
	for name := range r.carriers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered carriers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.carriers)
}

// Eligibility is the outcome of one carrier's CanSendShipment check.
type Eligibility struct {
	Carrier  string
	Eligible bool
	Err      error
}

// CheckEligibility asks the named carriers in parallel whether they accept the
// shipment. Results keep the order of names. Errors and panics make a carrier
// ineligible and are reported in Err; they never fail the whole call.
func (r *Registry) CheckEligibility(ctx context.Context, shipment *Shipment, names []string) []Eligibility {
	results := make([]Eligibility, len(names))

	g, ctx := errgroup.WithContext(ctx)

	for i, name := range names {
		results[i].Carrier = name
		g.Go(func() error {
			ok, err := r.canSend(ctx, name, shipment)
			results[i].Eligible = ok && err == nil
			results[i].Err = err
			return nil // Don't fail the group, continue with other carriers
		})
	}

	_ = g.Wait()
	return results
}

func (r *Registry) canSend(ctx context.Context, name string, shipment *Shipment) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			ok, err = false, fmt.Errorf("%s: eligibility panicked: %v", name, p)
		}
	}()

	c, err := r.Get(name)
	if err != nil {
		return false, err
	}
	return c.CanSendShipment(ctx, shipment)
}
