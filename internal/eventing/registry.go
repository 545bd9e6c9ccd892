package eventing

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownEventType is returned when an envelope names an unregistered type.
var ErrUnknownEventType = errors.New("eventing: unknown event type")

type decodeFunc func(payload json.RawMessage) (any, error)

// Registry maps event type names to payload decoders so the dispatcher can
// turn outbox rows back into typed events.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]decodeFunc
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]decodeFunc)}
}

// RegisterType registers T under EventTypeOf[T]. Decoded payloads are T values,
// matching what publishers pass to Publish.
func RegisterType[T any](r *Registry) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.decoders[EventTypeOf[T]()] = func(payload json.RawMessage) (any, error) {
		var event T
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, err
		}
		return event, nil
	}
	r.mu.Unlock()
}

// Known reports whether eventType has a decoder.
func (r *Registry) Known(eventType string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.decoders[eventType]
	return ok
}

// DecodePayload decodes env.Payload into the registered event type.
func (r *Registry) DecodePayload(env Envelope) (any, error) {
	if r == nil {
		return nil, errors.New("eventing: nil registry")
	}
	r.mu.RLock()
	decode := r.decoders[env.EventType]
	r.mu.RUnlock()
	if decode == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, env.EventType)
	}
	event, err := decode(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("eventing: decode %s: %w", env.EventType, err)
	}
	return event, nil
}
