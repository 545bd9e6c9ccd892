package eventing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"royalty-engine/internal/observability/metrics"
)

// Publisher writes events to the outbox and triggers dispatch.
type Publisher struct {
	outbox   OutboxWriter
	dispatch *Dispatcher
	sub      Subscriber
	logger   *zap.Logger
}

// OutboxWriter inserts outbox records.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// Subscriber registers handlers.
type Subscriber interface {
	Subscribe(eventType string, handler EventHandler)
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithDispatcher delivers freshly written records right after insert.
func WithDispatcher(dispatch *Dispatcher) PublisherOption {
	return func(p *Publisher) {
		p.dispatch = dispatch
	}
}

// WithPublisherLogger sets the logger used for slow writes and dispatch errors.
func WithPublisherLogger(logger *zap.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPublisher constructs a publisher.
func NewPublisher(outbox OutboxWriter, sub Subscriber, opts ...PublisherOption) *Publisher {
	p := &Publisher{outbox: outbox, sub: sub, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish writes the event to the outbox and triggers dispatch.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	start := time.Now()
	if p == nil || p.outbox == nil {
		return nil
	}
	env, err := BuildEnvelope(event, MetaFromContext(ctx))
	if err != nil {
		metrics.ObserveOutboxPublish(metrics.ResultError, time.Since(start))
		return err
	}
	if _, err := p.outbox.Insert(ctx, env); err != nil {
		metrics.ObserveOutboxPublish(metrics.ResultError, time.Since(start))
		return err
	}
	duration := time.Since(start)
	metrics.ObserveOutboxPublish(metrics.ResultSuccess, duration)
	if duration > 50*time.Millisecond {
		p.logger.Info("outbox publish slow",
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.String("event_type", env.EventType))
	}
	if p.dispatch != nil {
		if _, err := p.dispatch.Dispatch(ctx, 10); err != nil {
			p.logger.Warn("outbox dispatch failed", zap.String("event_type", env.EventType), zap.Error(err))
		}
	}
	return nil
}

// Subscribe delegates to the underlying subscriber when available.
func (p *Publisher) Subscribe(eventType string, handler EventHandler) {
	if p == nil || p.sub == nil {
		return
	}
	p.sub.Subscribe(eventType, handler)
}
