// Package queue carries sync pushes that failed inline over RabbitMQ so they
// can be retried later with a fresh signature.
package queue

import (
	"encoding/json"
	"time"
)

// DeferredQueue is the durable queue holding failed sync pushes.
const DeferredQueue = "server-sync.deferred"

// SyncEvent is one sync push waiting for redelivery.  Payload is the JSON
// body originally sent; it is re-signed on every attempt because the
// receiver rejects timestamps older than five minutes.
type SyncEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`   // sync-user | sync-user-stats | sync-user-config
	Target    string          `json:"target"` // receiver base URL
	Path      string          `json:"path"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
	LastError string          `json:"last_error,omitempty"`
}
