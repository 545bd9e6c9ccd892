package eventing

import "context"

type (
	envelopeKey    struct{}
	actorKey       struct{}
	correlationKey struct{}
)

// WithEnvelope attaches the envelope being delivered to ctx.
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, envelopeKey{}, env)
}

// EnvelopeFromContext returns the envelope being delivered, if any.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	env, ok := ctx.Value(envelopeKey{}).(Envelope)
	return env, ok
}

// WithActor records who caused the events published with ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// WithCorrelationID ties events published with ctx to one request or run.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	if correlationID == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, correlationID)
}

// MetaFromContext builds envelope metadata from ctx. Events published while
// handling another event inherit its correlation id and actor.
func MetaFromContext(ctx context.Context) Meta {
	var meta Meta
	meta.Actor, _ = ctx.Value(actorKey{}).(string)
	meta.CorrelationID, _ = ctx.Value(correlationKey{}).(string)
	if env, ok := EnvelopeFromContext(ctx); ok {
		if meta.CorrelationID == "" {
			meta.CorrelationID = env.CorrelationID
		}
		if meta.Actor == "" {
			meta.Actor = env.Actor
		}
	}
	return meta
}
