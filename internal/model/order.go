package model

import (
	"errors"
	"time"
)

// OrderType describes how an order is fulfilled.
type OrderType string

const (
	OrderDineIn   OrderType = "dine-in"
	OrderTakeaway OrderType = "takeaway"
	OrderDelivery OrderType = "delivery"
	OrderExternal OrderType = "external" // marketplace / third-party channel
)

// Valid reports whether t is one of the known order types.
func (t OrderType) Valid() bool {
	switch t {
	case OrderDineIn, OrderTakeaway, OrderDelivery, OrderExternal:
		return true
	}
	return false
}

// OrderStatus is the kitchen/service lifecycle state of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusServed    OrderStatus = "served"
	StatusPaid      OrderStatus = "paid"
)

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusReady, StatusServed, StatusPaid:
		return true
	}
	return false
}

// IsVisibleToWaiter reports whether an order in status s belongs on a
// waiter's screen.  Served and paid orders are terminal for the waiter.
// Every order list shown to a waiter must be filtered through this rule.
func IsVisibleToWaiter(s OrderStatus) bool {
	return s != StatusServed && s != StatusPaid
}

// Order is the server-confirmed state of one order.
//
// Fields:
//  ID            – server id.
//  TableID       – table for dine-in orders, nil otherwise.
//  TableNumber   – display number of the table, when the server joins it.
//  Type          – fulfilment channel.
//  Status        – lifecycle status.
//  PaymentStatus – unpaid / paid / debt, informational for the waiter.
//  Total         – server-computed total, never negative.
//  Version       – optimistic-concurrency counter sent back on status updates.
//  CreatedAt     – creation time reported by the server.
//  Items         – confirmed line items in server order.
type Order struct {
	ID            int64
	TableID       *int64
	TableNumber   string
	Type          OrderType
	Status        OrderStatus
	PaymentStatus string
	Total         Money
	Version       int64
	CreatedAt     time.Time
	Items         []OrderItem
}

// Visible applies IsVisibleToWaiter to the order's status.
func (o Order) Visible() bool { return IsVisibleToWaiter(o.Status) }

// Clone returns a deep copy so callers can't alias the held order's slices.
func (o Order) Clone() Order {
	c := o
	if o.TableID != nil {
		id := *o.TableID
		c.TableID = &id
	}
	c.Items = append([]OrderItem(nil), o.Items...)
	return c
}

// OrderItem is a line item the server has persisted.
type OrderItem struct {
	ID         int64
	MenuItemID int64
	Name       string
	Quantity   int
	UnitPrice  Money
	Notes      string
	CreatedAt  time.Time
}

// DraftItem is a line item that exists only on the client until it is
// submitted.  It has no id; the server assigns one on submission.
type DraftItem struct {
	MenuItemID int64
	Name       string
	Quantity   int
	UnitPrice  Money
	Notes      string
}

var (
	ErrInvalidMenuItem = errors.New("menu item id must be positive")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrNegativePrice   = errors.New("unit price must not be negative")
)

// Validate checks the local invariants of a draft line.
func (d DraftItem) Validate() error {
	if d.MenuItemID <= 0 {
		return ErrInvalidMenuItem
	}
	if d.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if d.UnitPrice < 0 {
		return ErrNegativePrice
	}
	return nil
}

// FilterVisible keeps only the orders a waiter should see, preserving order.
func FilterVisible(orders []Order) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if o.Visible() {
			out = append(out, o)
		}
	}
	return out
}
