package tracking

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tournevent/fulfillment/internal/notify"
)

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
