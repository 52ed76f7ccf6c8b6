// ABOUTME: Push-stream event and notification types
// ABOUTME: Wire shape of out-of-band change events and the toast entries derived from them
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Severity drives toast styling.
type Severity string

const (
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
)

// Source records where a notification came from.
type Source string

const (
	SourceLocal  Source = "local"
	SourceStream Source = "stream"
)

// EntityOp is the change a stream event describes.
type EntityOp string

const (
	OpUpsert EntityOp = "upsert"
	OpRemove EntityOp = "remove"
)

// EntityChange is the optional entity payload of a stream event.
type EntityChange struct {
	Kind   Kind            `json:"kind"`
	ID     uuid.UUID       `json:"id"`
	Op     EntityOp        `json:"op"`
	Record json.RawMessage `json:"record,omitempty"`
}

// StreamEvent is one frame of the push channel. Delivery is at-least-once and unordered.
type StreamEvent struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Message   string        `json:"message"`
	CreatedAt time.Time     `json:"createdAt"`
	Severity  Severity      `json:"severity,omitempty"`
	Entity    *EntityChange `json:"entity,omitempty"`
}

// Notification is an entry of the toast queue.
type Notification struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Message    string     `json:"message"`
	Severity   Severity   `json:"severity"`
	Source     Source     `json:"source"`
	CreatedAt  time.Time  `json:"createdAt"`
	EntityKind Kind       `json:"entityKind,omitempty"`
	EntityID   *uuid.UUID `json:"entityId,omitempty"`
}
