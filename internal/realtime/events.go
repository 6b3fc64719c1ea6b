package realtime

import "encoding/json"

// Server → client event names.
const (
	EventTableUpdate    = "table:update"
	EventOrderNew       = "order:new"
	EventOrderUpdate    = "order:update"
	EventOrderItemAdd   = "order:item:add"
	EventOrderPaid      = "order:paid"
	EventMenuItemUpdate = "menu:item:update"

	EventAuthOK    = "auth_ok"
	EventAuthError = "auth_error"
)

// Client → server event names.
const EventAuth = "auth"

// Frame is the JSON envelope of every message on the channel.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a frame.
func NewFrame(event string, data any) (Frame, error) {
	if data == nil {
		return Frame{Event: event}, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: b}, nil
}

// Event is a frame handed to subscribers.
type Event struct {
	Name string
	Data json.RawMessage
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error { return json.Unmarshal(e.Data, v) }

// AuthPayload carries the bearer token after connect.
type AuthPayload struct {
	Token string `json:"token"`
}

// TableUpdate is the payload of table:update.
type TableUpdate struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// OrderNew is the payload of order:new.
type OrderNew struct {
	ID      int64   `json:"id"`
	TableID *int64  `json:"tableId"`
	Total   float64 `json:"total"`
	Status  string  `json:"status"`
}

// OrderUpdate is the payload of order:update.
type OrderUpdate struct {
	ID      int64    `json:"id"`
	Status  string   `json:"status"`
	Total   *float64 `json:"total,omitempty"`
	Version int64    `json:"version"`
}

// AddedItem is the item part of order:item:add.
type AddedItem struct {
	MenuItemID int64   `json:"menuItemId"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
}

// OrderItemAdd is the payload of order:item:add.
type OrderItemAdd struct {
	OrderID int64     `json:"orderId"`
	Item    AddedItem `json:"item"`
}

// OrderPaid is the payload of order:paid.
type OrderPaid struct {
	OrderID int64 `json:"orderId"`
}

// MenuItemUpdate is the payload of menu:item:update.
type MenuItemUpdate struct {
	ID        int64    `json:"id"`
	Available *bool    `json:"available,omitempty"`
	Price     *float64 `json:"price,omitempty"`
}

// OrderID extracts the order an order event refers to.  ok is false for
// events that don't carry one or whose payload doesn't decode.
func OrderID(ev Event) (id int64, ok bool) {
	switch ev.Name {
	case EventOrderUpdate:
		var p OrderUpdate
		if ev.Decode(&p) != nil {
			return 0, false
		}
		return p.ID, true
	case EventOrderNew:
		var p OrderNew
		if ev.Decode(&p) != nil {
			return 0, false
		}
		return p.ID, true
	case EventOrderItemAdd:
		var p OrderItemAdd
		if ev.Decode(&p) != nil {
			return 0, false
		}
		return p.OrderID, true
	case EventOrderPaid:
		var p OrderPaid
		if ev.Decode(&p) != nil {
			return 0, false
		}
		return p.OrderID, true
	}
	return 0, false
}
