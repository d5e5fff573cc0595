// Package fulfillment picks the carrier of a shipment and registers the
// shipment with it.
package fulfillment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/fulfillment/internal/storage"
	"github.com/tournevent/fulfillment/internal/telemetry"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

// PriorityReader loads carrier weights.
type PriorityReader interface {
	Priorities(ctx context.Context, channel, country string) ([]storage.Priority, error)
}

// Selector orders the carriers able to send a shipment.
type Selector struct {
	priorities PriorityReader
	registry   *shipper.Registry
	metrics    *telemetry.Metrics
	logger     *otelzap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a selector drawing from a randomly seeded source.
func NewSelector(priorities PriorityReader, registry *shipper.Registry, metrics *telemetry.Metrics, logger *otelzap.Logger) *Selector {
	return &Selector{
		priorities: priorities,
		registry:   registry,
		metrics:    metrics,
		logger:     logger,
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// WithRand replaces the random source.
func (s *Selector) WithRand(rng *rand.Rand) *Selector {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = rng
	return s
}

type candidate struct {
	carrier string
	weight  int
}

// Select returns the eligible carriers of the shipment's channel and
// destination, highest weight first. When more than one is eligible a single
// weighted draw moves the winner to the front; the others keep their order.
// A carrier chosen by the customer restricts the candidates to itself.
// An empty result means nothing can send the shipment.
func (s *Selector) Select(ctx context.Context, shipment *shipper.Shipment) ([]string, error) {
	if shipment.Order == nil {
		return nil, fmt.Errorf("shipment %d has no order", shipment.ID)
	}

	prios, err := s.priorities.Priorities(ctx, shipment.Channel(), shipment.Country())
	if err != nil {
		return nil, fmt.Errorf("load carrier priorities: %w", err)
	}

	selected := shipment.Order.SelectedCarrier
	names := make([]string, 0, len(prios))
	weights := make([]int, 0, len(prios))
	for _, p := range prios {
		if selected != "" && p.Carrier != selected {
			continue
		}
		names = append(names, p.Carrier)
		weights = append(weights, p.Weight)
	}

	var eligible []candidate
	for i, res := range s.registry.CheckEligibility(ctx, shipment, names) {
		if res.Err != nil {
			s.logger.Ctx(ctx).Warn("Carrier eligibility check failed",
				zap.String("carrier", res.Carrier),
				zap.Int64("shipment_id", shipment.ID),
				zap.Error(res.Err),
			)
		}
		if res.Eligible {
			eligible = append(eligible, candidate{carrier: res.Carrier, weight: weights[i]})
		}
	}

	if len(eligible) > 1 {
		w := make([]int, len(eligible))
		for i, c := range eligible {
			w[i] = c.weight
		}
		winner := eligible[s.draw(w)]
		rest := make([]candidate, 0, len(eligible))
		rest = append(rest, winner)
		for _, c := range eligible {
			if c.carrier != winner.carrier {
				rest = append(rest, c)
			}
		}
		eligible = rest
	}

	out := make([]string, len(eligible))
	for i, c := range eligible {
		out[i] = c.carrier
	}
	if len(out) > 0 {
		s.metrics.RecordSelection(out[0])
	}
	return out, nil
}

// LocalServices returns every registered carrier accepting a local shipment,
// in name order. Priorities are not consulted.
func (s *Selector) LocalServices(ctx context.Context, shipment *shipper.Shipment) []string {
	var out []string
	for _, res := range s.registry.CheckEligibility(ctx, shipment, s.registry.Names()) {
		if res.Err != nil {
			s.logger.Ctx(ctx).Warn("Carrier eligibility check failed",
				zap.String("carrier", res.Carrier),
				zap.Int64("shipment_id", shipment.ID),
				zap.Error(res.Err),
			)
		}
		if res.Eligible {
			out = append(out, res.Carrier)
		}
	}
	return out
}

// draw returns an index with probability proportional to its weight.
// Non-positive weights never win unless every weight is non-positive, in
// which case the draw is uniform.
func (s *Selector) draw(weights []int) int {
	total := 0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if total == 0 {
		return s.rng.IntN(len(weights))
	}
	r := s.rng.IntN(total)
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		if r < w {
			return i
		}
		r -= w
	}
	return len(weights) - 1
}
