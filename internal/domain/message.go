package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxMessage is a to-be-published event, written in the same transaction
// as the state change it announces. Processed flips false-to-true once the
// broker has acknowledged the publish and is never reset.
type OutboxMessage struct {
	ID         uuid.UUID
	Exchange   string
	RoutingKey string
	Payload    json.RawMessage
	Processed  bool
	CreatedAt  time.Time
}

// InboxMessage is the dedup ledger entry for a received event. DedupKey is
// unique, so broker-level redelivery of the same event cannot commit twice.
type InboxMessage struct {
	ID        uuid.UUID
	DedupKey  string
	Payload   json.RawMessage
	Processed bool
	CreatedAt time.Time
}
