package messagequeue

// EmbedJobPayload is the schema for ingest.job messages. The doc id is
// the idempotency key: chunk vector ids derive deterministically from
// doc_id + chunk index, so redelivery is safe.
type EmbedJobPayload struct {
	TenantID string `json:"tenant_id"`
	FilePath string `json:"file_path"`
	DocID    string `json:"doc_id"`
	Source   string `json:"source"`
}

// TicketPayload is the schema for ops.ticket, ops.service, and
// ops.escalation messages.
type TicketPayload struct {
	TicketID string `json:"ticket_id"`
	TenantID string `json:"tenant_id"`
	Kind     string `json:"kind"`
	GuestID  string `json:"guest_id,omitempty"`
	Subject  string `json:"subject"`
	Detail   string `json:"detail,omitempty"`
	Priority string `json:"priority,omitempty"`
}
