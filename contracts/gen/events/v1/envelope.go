package v1

import (
	"encoding/json"
	"time"
)

// Envelope is the versioned event envelope shared by the API, the worker and
// external consumers of milestone escrow events. Fields are append-only.
type Envelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

// Topic returns the broker topic an envelope is routed to.
func (e Envelope) Topic() string {
	return e.EventType
}
