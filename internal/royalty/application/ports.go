package application

import "context"

// CycleLocker serializes writers of one cycle id.
type CycleLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// ReportStore persists rendered report files.
type ReportStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (location string, err error)
	Get(ctx context.Context, location string) ([]byte, error)
	// Delete removes a stored report. Missing objects are not an error.
	Delete(ctx context.Context, location string) error
}

// EventPublisher emits domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, any) error { return nil }
