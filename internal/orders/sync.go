// Package orders keeps the waiter's single current order consistent with
// the server.  Unsent line items live in a draft next to the confirmed
// order and are never merged into it: the server's reply to a submission
// replaces the order, and push events about the current order trigger a
// full reload.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/iliyamo/pos-waiter/internal/logging"
	"github.com/iliyamo/pos-waiter/internal/model"
	"github.com/iliyamo/pos-waiter/internal/posapi"
	"github.com/iliyamo/pos-waiter/internal/realtime"
	"github.com/iliyamo/pos-waiter/internal/transport"
)

var (
	ErrEmptyDraft      = errors.New("orders: draft has no items")
	ErrNoCurrentOrder  = errors.New("orders: no order selected")
	ErrVersionConflict = errors.New("orders: order changed on the server, reloaded")
	ErrTableRequired   = errors.New("orders: dine-in order needs a table")
	ErrInvalidType     = errors.New("orders: unknown order type")
	ErrDraftIndex      = errors.New("orders: draft index out of range")
	ErrSuperseded      = errors.New("orders: another order was selected while the request was in flight")
)

// API is the part of the POS REST surface order sync needs.
type API interface {
	OpenOrder(ctx context.Context, tableID int64) (*model.Order, error)
	CreateOrder(ctx context.Context, in posapi.CreateOrderInput) (model.Order, error)
	AddItems(ctx context.Context, orderID int64, items []posapi.ItemInput) (model.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus, version int64) (model.Order, error)
	Order(ctx context.Context, orderID int64) (model.Order, error)
	ActiveOrders(ctx context.Context) ([]model.Order, error)
}

// Subscriber is where Attach registers event handlers; *realtime.Client
// satisfies it.
type Subscriber interface {
	On(event string, h realtime.Handler)
}

type draftEntry struct {
	seq  uint64
	item model.DraftItem
}

// Sync holds the current order and the draft.  The mutex is never held
// across a network call; results are applied only if the state they were
// computed for is still current.
type Sync struct {
	api          API
	log          *slog.Logger
	EventTimeout time.Duration // bound on a reload triggered by an event

	mu      sync.Mutex
	current *model.Order
	draft   []draftEntry
	nextSeq uint64
	sel     uint64 // bumped whenever the current order is chosen anew
}

// New returns an empty Sync.  A nil logger discards.
func New(api API, logger *slog.Logger) *Sync {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sync{api: api, log: logger, EventTimeout: 5 * time.Second}
}

// Current returns a copy of the current order, nil when none is selected.
func (s *Sync) Current() *model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	c := s.current.Clone()
	return &c
}

// Draft returns a copy of the unsent items in insertion order.
func (s *Sync) Draft() []model.DraftItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.DraftItem, len(s.draft))
	for i, e := range s.draft {
		out[i] = e.item
	}
	return out
}

// DraftTotal sums the draft at its local prices.
func (s *Sync) DraftTotal() model.Money { return model.DraftTotal(s.Draft()) }

// Clear drops the current order and the draft.
func (s *Sync) Clear() {
	s.mu.Lock()
	s.sel++
	s.current = nil
	s.draft = nil
	s.mu.Unlock()
}

// AddDraftItem appends a validated item to the draft.
func (s *Sync) AddDraftItem(it model.DraftItem) error {
	if err := it.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.nextSeq++
	s.draft = append(s.draft, draftEntry{seq: s.nextSeq, item: it})
	s.mu.Unlock()
	return nil
}

// RemoveDraftItem deletes the draft item at index.
func (s *Sync) RemoveDraftItem(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.draft) {
		return fmt.Errorf("%w: %d", ErrDraftIndex, index)
	}
	s.draft = append(s.draft[:index], s.draft[index+1:]...)
	return nil
}

// FetchOpenOrder makes the table's open order current, or clears the
// current order when the table has none.  The draft is kept.  A reply that
// arrives after a later fetch, a created order or Clear is discarded with
// ErrSuperseded.
func (s *Sync) FetchOpenOrder(ctx context.Context, tableID int64) (*model.Order, error) {
	s.mu.Lock()
	s.sel++
	sel := s.sel
	s.mu.Unlock()

	o, err := s.api.OpenOrder(ctx, tableID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.sel != sel {
		s.mu.Unlock()
		s.log.Debug("open order reply superseded", "table", tableID)
		return nil, ErrSuperseded
	}
	s.current = o
	s.mu.Unlock()
	if o == nil {
		return nil, nil
	}
	c := o.Clone()
	return &c, nil
}

// CreateOrder opens an order with the whole draft.  tableID 0 means no
// table, which only non-dine-in orders may use.  An empty draft fails
// locally without a request.
func (s *Sync) CreateOrder(ctx context.Context, tableID int64, typ model.OrderType) (model.Order, error) {
	if !typ.Valid() {
		return model.Order{}, fmt.Errorf("%w: %q", ErrInvalidType, typ)
	}
	if typ == model.OrderDineIn && tableID <= 0 {
		return model.Order{}, ErrTableRequired
	}
	items, seqs := s.snapshotDraft()
	if len(items) == 0 {
		return model.Order{}, ErrEmptyDraft
	}
	in := posapi.CreateOrderInput{OrderType: string(typ), Items: posapi.ItemsFromDraft(items)}
	if tableID > 0 {
		in.TableID = &tableID
	}

	o, err := s.api.CreateOrder(ctx, in)
	if err != nil {
		return model.Order{}, err
	}
	s.mu.Lock()
	s.dropSubmitted(seqs)
	s.sel++
	cur := o.Clone()
	s.current = &cur
	s.mu.Unlock()
	s.log.Info("order created", "order", o.ID, "items", len(items))
	return o, nil
}

// SubmitDraft sends the draft to the current order.  Without a current
// order it is a no-op unless there is a draft to lose, which is
// ErrNoCurrentOrder.  Only the entries that were sent leave the draft.
func (s *Sync) SubmitDraft(ctx context.Context) error {
	s.mu.Lock()
	var orderID int64
	if s.current != nil {
		orderID = s.current.ID
	}
	hasDraft := len(s.draft) > 0
	s.mu.Unlock()

	if orderID == 0 {
		if hasDraft {
			return ErrNoCurrentOrder
		}
		return nil
	}
	items, seqs := s.snapshotDraft()
	if len(items) == 0 {
		return ErrEmptyDraft
	}

	o, err := s.api.AddItems(ctx, orderID, posapi.ItemsFromDraft(items))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.dropSubmitted(seqs)
	s.applyLocked(o)
	s.mu.Unlock()
	s.log.Info("draft submitted", "order", orderID, "items", len(items))
	return nil
}

// UpdateStatus asks the server to move the current order to status and
// adopts the server's reply.  The order's version is sent; when the server
// reports a conflict the order is reloaded once and ErrVersionConflict is
// returned.
func (s *Sync) UpdateStatus(ctx context.Context, status model.OrderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("orders: unknown status %q", status)
	}
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return nil
	}
	id, version := s.current.ID, s.current.Version
	s.mu.Unlock()

	o, err := s.api.UpdateStatus(ctx, id, status, version)
	if transport.IsStatus(err, http.StatusConflict) {
		s.log.Warn("status update conflict", "order", id, "version", version)
		if rerr := s.reload(ctx, id); rerr != nil {
			s.log.Warn("reload after conflict failed", "order", id, "error", rerr)
		}
		return fmt.Errorf("%w: %w", ErrVersionConflict, err)
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.applyLocked(o)
	s.mu.Unlock()
	return nil
}

// ReloadOrder refetches the current order.  No current order is a no-op.
func (s *Sync) ReloadOrder(ctx context.Context) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return nil
	}
	id := s.current.ID
	s.mu.Unlock()
	return s.reload(ctx, id)
}

func (s *Sync) reload(ctx context.Context, id int64) error {
	o, err := s.api.Order(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.applyLocked(o)
	s.mu.Unlock()
	return nil
}

// ActiveOrders lists the server's active orders a waiter should see.
func (s *Sync) ActiveOrders(ctx context.Context) ([]model.Order, error) {
	list, err := s.api.ActiveOrders(ctx)
	if err != nil {
		return nil, err
	}
	return model.FilterVisible(list), nil
}

// HandleEvent reloads the current order when ev refers to it.  Other
// events and other orders are ignored.
func (s *Sync) HandleEvent(ev realtime.Event) {
	switch ev.Name {
	case realtime.EventOrderUpdate, realtime.EventOrderItemAdd, realtime.EventOrderPaid:
	default:
		return
	}
	id, ok := realtime.OrderID(ev)
	if !ok {
		s.log.Warn("undecodable order event", "event", ev.Name)
		return
	}
	s.mu.Lock()
	match := s.current != nil && s.current.ID == id
	s.mu.Unlock()
	if !match {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.EventTimeout)
	defer cancel()
	if err := s.reload(ctx, id); err != nil {
		s.log.Warn("event reload failed", "event", ev.Name, "order", id, "error", err)
	}
}

// Attach subscribes HandleEvent to the order events of sub.
func (s *Sync) Attach(sub Subscriber) {
	for _, name := range []string{realtime.EventOrderUpdate, realtime.EventOrderItemAdd, realtime.EventOrderPaid} {
		sub.On(name, s.HandleEvent)
	}
}

// snapshotDraft copies the draft and the sequence numbers of its entries.
func (s *Sync) snapshotDraft() ([]model.DraftItem, map[uint64]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]model.DraftItem, len(s.draft))
	seqs := make(map[uint64]bool, len(s.draft))
	for i, e := range s.draft {
		items[i] = e.item
		seqs[e.seq] = true
	}
	return items, seqs
}

// dropSubmitted removes the draft entries in seqs.  Callers hold s.mu.
func (s *Sync) dropSubmitted(seqs map[uint64]bool) {
	kept := s.draft[:0]
	for _, e := range s.draft {
		if !seqs[e.seq] {
			kept = append(kept, e)
		}
	}
	s.draft = kept
}

// applyLocked replaces the current order with o if o is still the current
// order.  Callers hold s.mu.
func (s *Sync) applyLocked(o model.Order) {
	if s.current == nil || s.current.ID != o.ID {
		return
	}
	c := o.Clone()
	s.current = &c
}
