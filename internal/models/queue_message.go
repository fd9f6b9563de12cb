package models

import (
	"encoding/json"
	"errors"
)

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = errors.New("no messages in queue")

// Queue message types
const (
	MessageTypeBatchProcess = "batch.process"
)

// QueueMessage is the structure stored in the queue.
// Keep it simple - just enough to route the job.
type QueueMessage struct {
	ID      string          `json:"id"`      // Assigned by the queue on enqueue
	JobID   string          `json:"job_id"`  // Batch ID for batch.process messages
	Type    string          `json:"type"`    // Handler routing key
	Payload json.RawMessage `json:"payload"` // Handler-specific data
}

// BatchProcessPayload is the payload of a batch.process message
type BatchProcessPayload struct {
	BatchID           string `json:"batch_id"`
	IncludeEmbeddings bool   `json:"include_embeddings"`
}
