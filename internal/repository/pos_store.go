package repository

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/pos-waiter/internal/model"
)

// LineInput is one requested order line.
type LineInput struct {
	MenuItemID int64
	Quantity   int
	Notes      string
}

// POSStore keeps the menu, the floor plan, the orders and the mobile
// feature flag in memory.  Every order mutation bumps the order's version.
type POSStore struct {
	mu       sync.Mutex
	menu     []model.MenuItem
	cats     []string
	tables   []model.Table
	orders   map[int64]*model.Order
	nextOID  int64
	nextIID  int64
	mobileOn bool
	now      func() time.Time
}

// NewPOSStore returns a store seeded with the demo menu and tables.
func NewPOSStore(mobileEnabled bool) *POSStore {
	s := &POSStore{
		orders:   map[int64]*model.Order{},
		nextOID:  1,
		nextIID:  1,
		mobileOn: mobileEnabled,
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.cats = []string{"Starters", "Mains", "Drinks", "Desserts"}
	s.menu = []model.MenuItem{
		{ID: 1, Name: "Mercimek Çorbası", Price: 9000, Category: "Starters", Available: true},
		{ID: 2, Name: "Humus", Price: 11000, Category: "Starters", Available: true},
		{ID: 3, Name: "Adana Kebap", Price: 32000, Category: "Mains", Available: true},
		{ID: 4, Name: "Karnıyarık", Price: 24000, Category: "Mains", Available: true},
		{ID: 5, Name: "Ayran", Price: 3500, Category: "Drinks", Available: true},
		{ID: 6, Name: "Türk Kahvesi", Price: 6000, Category: "Drinks", Available: true},
		{ID: 7, Name: "Künefe", Price: 15000, Category: "Desserts", Available: true},
	}
	for i := 1; i <= 8; i++ {
		seats := 4
		if i > 6 {
			seats = 6
		}
		s.tables = append(s.tables, model.Table{ID: int64(i), Number: fmt.Sprintf("T%d", i), Seats: seats, Status: model.TableAvailable})
	}
	return s
}

// ----- feature flag -----

func (s *POSStore) MobileEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mobileOn
}

func (s *POSStore) SetMobileEnabled(on bool) {
	s.mu.Lock()
	s.mobileOn = on
	s.mu.Unlock()
}

// ----- menu -----

// Menu returns the categories and a copy of the items.
func (s *POSStore) Menu() ([]string, []model.MenuItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cats...), append([]model.MenuItem(nil), s.menu...)
}

// UpdateMenuItem changes availability and/or price.
func (s *POSStore) UpdateMenuItem(id int64, available *bool, price *model.Money) (model.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.menu {
		if s.menu[i].ID != id {
			continue
		}
		if price != nil {
			if *price < 0 {
				return model.MenuItem{}, fmt.Errorf("%w: negative price", ErrInvalid)
			}
			s.menu[i].Price = *price
		}
		if available != nil {
			s.menu[i].Available = *available
		}
		return s.menu[i], nil
	}
	return model.MenuItem{}, ErrNotFound
}

func (s *POSStore) menuItem(id int64) (model.MenuItem, bool) {
	for _, m := range s.menu {
		if m.ID == id {
			return m, true
		}
	}
	return model.MenuItem{}, false
}

// ----- tables -----

func (s *POSStore) Tables() []model.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Table(nil), s.tables...)
}

// SetTableStatus changes a table's status.
func (s *POSStore) SetTableStatus(id int64, st model.TableStatus) (model.Table, error) {
	if !st.Valid() {
		return model.Table{}, fmt.Errorf("%w: table status %q", ErrInvalid, st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(id)
	if t == nil {
		return model.Table{}, ErrNotFound
	}
	t.Status = st
	return *t, nil
}

func (s *POSStore) table(id int64) *model.Table {
	for i := range s.tables {
		if s.tables[i].ID == id {
			return &s.tables[i]
		}
	}
	return nil
}

// ----- orders -----

func isOpen(o *model.Order) bool { return o.Status != model.StatusPaid }

// OpenOrder returns the newest unpaid order of a table, or nil.
func (s *POSStore) OpenOrder(tableID int64) *model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *model.Order
	for _, o := range s.orders {
		if o.TableID == nil || *o.TableID != tableID || !isOpen(o) {
			continue
		}
		if best == nil || o.ID > best.ID {
			best = o
		}
	}
	if best == nil {
		return nil
	}
	c := best.Clone()
	return &c
}

// CreateOrder opens an order.  Dine-in orders need a known table, which
// becomes occupied.
func (s *POSStore) CreateOrder(tableID *int64, typ model.OrderType, lines []LineInput) (model.Order, error) {
	if !typ.Valid() {
		return model.Order{}, fmt.Errorf("%w: order type %q", ErrInvalid, typ)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var t *model.Table
	if typ == model.OrderDineIn {
		if tableID == nil {
			return model.Order{}, fmt.Errorf("%w: dine-in order needs a table", ErrInvalid)
		}
		if t = s.table(*tableID); t == nil {
			return model.Order{}, fmt.Errorf("%w: table %d", ErrNotFound, *tableID)
		}
	}
	items, err := s.buildItems(lines)
	if err != nil {
		return model.Order{}, err
	}

	o := &model.Order{
		ID:            s.nextOID,
		Type:          typ,
		Status:        model.StatusPending,
		PaymentStatus: "unpaid",
		Version:       1,
		CreatedAt:     s.now(),
		Items:         items,
	}
	s.nextOID++
	if t != nil {
		id := t.ID
		o.TableID = &id
		o.TableNumber = t.Number
		t.Status = model.TableOccupied
	}
	o.Total = model.CalculateTotal(o.Items)
	s.orders[o.ID] = o
	return o.Clone(), nil
}

// AddItems appends lines to an unpaid order.
func (s *POSStore) AddItems(orderID int64, lines []LineInput) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	if !isOpen(o) {
		return model.Order{}, fmt.Errorf("%w: order %d is paid", ErrConflict, orderID)
	}
	items, err := s.buildItems(lines)
	if err != nil {
		return model.Order{}, err
	}
	o.Items = append(o.Items, items...)
	o.Total = model.CalculateTotal(o.Items)
	o.Version++
	return o.Clone(), nil
}

// UpdateStatus moves an order to st.  A non-zero version must match the
// stored one or ErrConflict is returned.  Paying an order frees its table.
func (s *POSStore) UpdateStatus(orderID int64, st model.OrderStatus, version int64) (model.Order, error) {
	if !st.Valid() {
		return model.Order{}, fmt.Errorf("%w: status %q", ErrInvalid, st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	if version > 0 && version != o.Version {
		return model.Order{}, fmt.Errorf("%w: order %d is at version %d, got %d", ErrConflict, orderID, o.Version, version)
	}
	o.Status = st
	o.Version++
	if st == model.StatusPaid {
		o.PaymentStatus = "paid"
		if o.TableID != nil {
			if t := s.table(*o.TableID); t != nil {
				t.Status = model.TableCleaning
			}
		}
	}
	return o.Clone(), nil
}

// Order returns one order.
func (s *POSStore) Order(id int64) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return o.Clone(), nil
}

// ActiveOrders returns every unpaid order, oldest first.
func (s *POSStore) ActiveOrders() []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if isOpen(o) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// buildItems prices lines from the menu.  Callers hold s.mu.
func (s *POSStore) buildItems(lines []LineInput) ([]model.OrderItem, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrInvalid)
	}
	now := s.now()
	out := make([]model.OrderItem, 0, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity %d for item %d", ErrInvalid, l.Quantity, l.MenuItemID)
		}
		m, ok := s.menuItem(l.MenuItemID)
		if !ok || !m.Available {
			return nil, fmt.Errorf("%w: menu item %d unavailable", ErrInvalid, l.MenuItemID)
		}
		out = append(out, model.OrderItem{
			ID:         s.nextIID,
			MenuItemID: m.ID,
			Name:       m.Name,
			Quantity:   l.Quantity,
			UnitPrice:  m.Price,
			Notes:      l.Notes,
			CreatedAt:  now,
		})
		s.nextIID++
	}
	return out, nil
}
