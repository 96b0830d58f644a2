// Package events publishes the opaque push feed consumers subscribe to for
// live review-queue updates. The core only produces; transport fan-out to
// websockets or SSE lives elsewhere.
package events

import "context"

// Publisher emits one feed event. Implementations must be safe for
// concurrent use; failures are the caller's to log, never to propagate.
type Publisher interface {
	Publish(ctx context.Context, key string, eventType string, data any) error
	Close()
}

// Noop drops all events. Used in tests and when Kafka is not configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, string, any) error { return nil }
func (Noop) Close()                                             {}
