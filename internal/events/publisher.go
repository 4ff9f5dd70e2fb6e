package events

import (
	"context"
	"sync"
)

type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// NoopPublisher drops events; used when NATS is not configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Envelope) error { return nil }

// RecordingPublisher keeps published envelopes in memory.
type RecordingPublisher struct {
	mu        sync.Mutex
	published []Envelope
}

func (p *RecordingPublisher) Publish(_ context.Context, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, env)
	return nil
}

func (p *RecordingPublisher) Published() []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Envelope, len(p.published))
	copy(out, p.published)
	return out
}
