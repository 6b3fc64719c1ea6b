package orders

import (
	"context"
	"log/slog"
	"sync"

	"github.com/iliyamo/pos-waiter/internal/logging"
	"github.com/iliyamo/pos-waiter/internal/model"
	"github.com/iliyamo/pos-waiter/internal/realtime"
)

// CatalogAPI loads the menu and the floor plan.
type CatalogAPI interface {
	Menu(ctx context.Context) (model.Menu, error)
	Tables(ctx context.Context) ([]model.Table, error)
}

// Catalog caches the menu and tables and patches them from push events.
// Unlike orders, these are patched in place: the events carry the whole
// changed field.
type Catalog struct {
	api CatalogAPI
	log *slog.Logger

	mu     sync.RWMutex
	menu   model.Menu
	tables []model.Table
}

func NewCatalog(api CatalogAPI, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Catalog{api: api, log: logger}
}

// LoadMenu fetches and caches the menu.
func (c *Catalog) LoadMenu(ctx context.Context) (model.Menu, error) {
	m, err := c.api.Menu(ctx)
	if err != nil {
		return model.Menu{}, err
	}
	c.mu.Lock()
	c.menu = m
	c.mu.Unlock()
	return c.Menu(), nil
}

// LoadTables fetches and caches the floor plan.
func (c *Catalog) LoadTables(ctx context.Context) ([]model.Table, error) {
	ts, err := c.api.Tables(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.tables = ts
	c.mu.Unlock()
	return c.Tables(), nil
}

// Menu returns a copy of the cached menu.
func (c *Catalog) Menu() model.Menu {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return model.Menu{
		Categories: append([]string(nil), c.menu.Categories...),
		Items:      append([]model.MenuItem(nil), c.menu.Items...),
	}
}

// Tables returns a copy of the cached tables.
func (c *Catalog) Tables() []model.Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Table(nil), c.tables...)
}

// HandleEvent applies table:update and menu:item:update.  Unknown ids are
// ignored until the next load.
func (c *Catalog) HandleEvent(ev realtime.Event) {
	switch ev.Name {
	case realtime.EventTableUpdate:
		var p realtime.TableUpdate
		if err := ev.Decode(&p); err != nil {
			c.log.Warn("undecodable table event", "error", err)
			return
		}
		st := model.TableStatus(p.Status)
		if !st.Valid() {
			c.log.Warn("unknown table status", "table", p.ID, "status", p.Status)
			return
		}
		c.mu.Lock()
		for i := range c.tables {
			if c.tables[i].ID == p.ID {
				c.tables[i].Status = st
			}
		}
		c.mu.Unlock()
	case realtime.EventMenuItemUpdate:
		var p realtime.MenuItemUpdate
		if err := ev.Decode(&p); err != nil {
			c.log.Warn("undecodable menu event", "error", err)
			return
		}
		c.mu.Lock()
		for i := range c.menu.Items {
			it := &c.menu.Items[i]
			if it.ID != p.ID {
				continue
			}
			if p.Available != nil {
				it.Available = *p.Available
			}
			if p.Price != nil {
				it.Price = model.MoneyFromFloat(*p.Price)
			}
		}
		c.mu.Unlock()
	}
}

// Attach subscribes HandleEvent to table and menu events of sub.
func (c *Catalog) Attach(sub Subscriber) {
	sub.On(realtime.EventTableUpdate, c.HandleEvent)
	sub.On(realtime.EventMenuItemUpdate, c.HandleEvent)
}
