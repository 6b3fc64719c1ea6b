package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/pos-waiter/internal/model"
	"github.com/iliyamo/pos-waiter/internal/realtime"
	"github.com/iliyamo/pos-waiter/internal/repository"
	"github.com/iliyamo/pos-waiter/internal/service"
)

// POSHandler serves the feature flag, menu, tables and orders.  Every
// mutation is announced through Events after it succeeds.
type POSHandler struct {
	Store  *repository.POSStore
	Events service.Publisher
	// MenuChanged runs after a menu item changes; the router uses it to
	// drop cached menu responses.
	MenuChanged func(ctx context.Context)
}

func NewPOSHandler(s *repository.POSStore, ev service.Publisher) *POSHandler {
	if ev == nil {
		ev = service.Discard{}
	}
	return &POSHandler{Store: s, Events: ev}
}

func (h *POSHandler) publish(c echo.Context, event string, data any) {
	if err := h.Events.Publish(c.Request().Context(), event, data); err != nil {
		log.Printf("handler: publish %s: %v", event, err)
	}
}

func pathID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

func toLines(items []itemReq) []repository.LineInput {
	out := make([]repository.LineInput, 0, len(items))
	for _, it := range items {
		out = append(out, repository.LineInput{MenuItemID: it.MenuItemID, Quantity: it.Quantity, Notes: it.Notes})
	}
	return out
}

// ----- feature flag -----

// MobileFeature reports whether the waiter app may be used.
func (h *POSHandler) MobileFeature(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"mobileEnabled": h.Store.MobileEnabled()})
}

// SetMobileFeature toggles the flag.  Mounted behind the owner check.
func (h *POSHandler) SetMobileFeature(c echo.Context) error {
	var req featureReq
	if err := c.Bind(&req); err != nil || req.Enabled == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "enabled is required"})
	}
	h.Store.SetMobileEnabled(*req.Enabled)
	return c.JSON(http.StatusOK, echo.Map{"mobileEnabled": *req.Enabled})
}

// ----- menu -----

func (h *POSHandler) Menu(c echo.Context) error {
	cats, items := h.Store.Menu()
	out := make([]menuItemDTO, 0, len(items))
	for _, m := range items {
		out = append(out, toMenuItemDTO(m))
	}
	return c.JSON(http.StatusOK, echo.Map{"categories": cats, "items": out})
}

// UpdateMenuItem changes availability or price and broadcasts
// menu:item:update.  Mounted behind the owner check.
func (h *POSHandler) UpdateMenuItem(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req menuPatchReq
	if err := c.Bind(&req); err != nil || (req.Available == nil && req.Price == nil) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "available or price is required"})
	}
	var price *model.Money
	if req.Price != nil {
		m := model.MoneyFromFloat(*req.Price)
		price = &m
	}
	item, err := h.Store.UpdateMenuItem(id, req.Available, price)
	if err != nil {
		return storeError(c, err)
	}
	if h.MenuChanged != nil {
		h.MenuChanged(c.Request().Context())
	}
	ev := realtime.MenuItemUpdate{ID: item.ID, Available: req.Available}
	if req.Price != nil {
		p := item.Price.Float()
		ev.Price = &p
	}
	h.publish(c, realtime.EventMenuItemUpdate, ev)
	return c.JSON(http.StatusOK, toMenuItemDTO(item))
}

// ----- tables -----

func (h *POSHandler) Tables(c echo.Context) error {
	ts := h.Store.Tables()
	out := make([]tableDTO, 0, len(ts))
	for _, t := range ts {
		out = append(out, tableDTO{ID: t.ID, Number: t.Number, Seats: t.Seats, Status: string(t.Status)})
	}
	return c.JSON(http.StatusOK, out)
}

// SetTableStatus changes a table's floor state, e.g. back to available
// after cleaning.
func (h *POSHandler) SetTableStatus(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req tableStatusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	t, err := h.Store.SetTableStatus(id, model.TableStatus(req.Status))
	if err != nil {
		return storeError(c, err)
	}
	h.publish(c, realtime.EventTableUpdate, realtime.TableUpdate{ID: t.ID, Status: string(t.Status)})
	return c.JSON(http.StatusOK, tableDTO{ID: t.ID, Number: t.Number, Seats: t.Seats, Status: string(t.Status)})
}

// ----- orders -----

// OpenOrder returns the table's unpaid order or JSON null.
func (h *POSHandler) OpenOrder(c echo.Context) error {
	tableID, err := strconv.ParseInt(c.QueryParam("tableId"), 10, 64)
	if err != nil || tableID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tableId is required"})
	}
	o := h.Store.OpenOrder(tableID)
	if o == nil {
		return c.JSON(http.StatusOK, nil)
	}
	return c.JSON(http.StatusOK, toOrderDTO(*o))
}

// CreateOrder opens an order with its first items.  A dine-in order marks
// its table occupied.
func (h *POSHandler) CreateOrder(c echo.Context) error {
	var req createOrderReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.OrderType == "" {
		req.OrderType = string(model.OrderDineIn)
	}
	o, err := h.Store.CreateOrder(req.TableID, model.OrderType(req.OrderType), toLines(req.Items))
	if err != nil {
		return storeError(c, err)
	}
	h.publish(c, realtime.EventOrderNew, realtime.OrderNew{ID: o.ID, TableID: o.TableID, Total: o.Total.Float(), Status: string(o.Status)})
	if o.TableID != nil {
		h.publish(c, realtime.EventTableUpdate, realtime.TableUpdate{ID: *o.TableID, Status: string(model.TableOccupied)})
	}
	return c.JSON(http.StatusCreated, toOrderDTO(o))
}

// AddItems appends lines to an order and returns the full order.  One
// order:item:add goes out per added line.
func (h *POSHandler) AddItems(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req addItemsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	o, err := h.Store.AddItems(id, toLines(req.Items))
	if err != nil {
		return storeError(c, err)
	}
	added := o.Items[len(o.Items)-len(req.Items):]
	for _, it := range added {
		h.publish(c, realtime.EventOrderItemAdd, realtime.OrderItemAdd{
			OrderID: o.ID,
			Item:    realtime.AddedItem{MenuItemID: it.MenuItemID, Quantity: it.Quantity, Price: it.UnitPrice.Float()},
		})
	}
	return c.JSON(http.StatusOK, toOrderDTO(o))
}

// UpdateStatus moves an order along.  A stale version is 409; paying
// broadcasts order:paid and frees the table for cleaning.
func (h *POSHandler) UpdateStatus(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req statusReq
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status is required"})
	}
	o, err := h.Store.UpdateStatus(id, model.OrderStatus(req.Status), req.Version)
	if err != nil {
		return storeError(c, err)
	}
	h.publish(c, realtime.EventOrderUpdate, orderUpdateEvent(o))
	if o.Status == model.StatusPaid {
		h.publish(c, realtime.EventOrderPaid, realtime.OrderPaid{OrderID: o.ID})
		if o.TableID != nil {
			h.publish(c, realtime.EventTableUpdate, realtime.TableUpdate{ID: *o.TableID, Status: string(model.TableCleaning)})
		}
	}
	return c.JSON(http.StatusOK, toOrderDTO(o))
}

// Order returns one order.
func (h *POSHandler) Order(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	o, err := h.Store.Order(id)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderDTO(o))
}

// ActiveOrders lists every unpaid order.
func (h *POSHandler) ActiveOrders(c echo.Context) error {
	list := h.Store.ActiveOrders()
	out := make([]orderDTO, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderDTO(o))
	}
	return c.JSON(http.StatusOK, out)
}
