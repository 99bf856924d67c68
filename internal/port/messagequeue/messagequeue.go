// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue. Returning an
// error nacks the message so the queue redelivers it (at-least-once).
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Close shuts down the queue connection.
	Close() error
}

// Subject constants for concierge queue traffic.
const (
	// SubjectIngestJob carries EmbedJobPayload: one queued document to
	// extract, chunk, embed, and upsert.
	SubjectIngestJob = "ingest.job"

	// Ops subjects carry the fire-and-forget side effects of queue-backed
	// tools. The ops worker persists them downstream.
	SubjectOpsTicket     = "ops.ticket"
	SubjectOpsService    = "ops.service"
	SubjectOpsEscalation = "ops.escalation"
)
