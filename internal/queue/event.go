// Package queue carries POS events across server processes through a
// RabbitMQ fanout exchange so every process's event hub sees every change.
package queue

import (
	"encoding/json"
	"time"
)

// ExchangeName is the fanout exchange POS events are published to.
const ExchangeName = "pos.events"

// POSEvent is one state change on the POS: an order created or updated, an
// item added, a table or menu item changed.  Event is the real-time event
// name clients subscribe to; Data is its payload as sent to them.
type POSEvent struct {
	Event      string          `json:"event"`
	Data       json.RawMessage `json:"data"`
	OccurredAt string          `json:"occurred_at"`
}

// NewPOSEvent marshals data into an event stamped with the current time.
func NewPOSEvent(event string, data any) (POSEvent, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return POSEvent{}, err
	}
	return POSEvent{Event: event, Data: b, OccurredAt: time.Now().UTC().Format(time.RFC3339)}, nil
}
