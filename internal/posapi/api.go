// Package posapi is the typed REST surface of the POS server.  Each method
// maps one endpoint onto the transport client and converts the wire shape
// into model types.  Errors are always *transport.Error.
package posapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/iliyamo/pos-waiter/internal/model"
	"github.com/iliyamo/pos-waiter/internal/transport"
)

// DefaultHealthTimeout bounds a discovery probe.
const DefaultHealthTimeout = 2 * time.Second

// API wraps a transport client.
type API struct {
	c             *transport.Client
	HealthTimeout time.Duration
}

// New returns an API over c.
func New(c *transport.Client) *API {
	return &API{c: c, HealthTimeout: DefaultHealthTimeout}
}

// Client exposes the underlying transport client.
func (a *API) Client() *transport.Client { return a.c }

func (a *API) get(ctx context.Context, path string, q url.Values, auth bool, out any) error {
	res := a.c.Do(ctx, transport.Request{Method: http.MethodGet, Path: path, Query: q, RequiresAuth: auth})
	if out == nil {
		return res.AsError()
	}
	return res.Decode(out)
}

func (a *API) send(ctx context.Context, method, path string, body any, auth bool, out any) error {
	res := a.c.Do(ctx, transport.Request{Method: method, Path: path, Body: body, RequiresAuth: auth})
	if out == nil {
		return res.AsError()
	}
	return res.Decode(out)
}

func malformed(what string) error {
	return &transport.Error{Kind: transport.KindMalformed, Message: transport.MsgMalformed + ": " + what}
}

// ----- health & handshake -----

// CheckHealth probes GET /health on c.  It reports true only for a 200 with
// a truthy "ok" field; every failure is folded into false.
func CheckHealth(ctx context.Context, c *transport.Client, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	res := c.Do(ctx, transport.Request{Method: http.MethodGet, Path: "/health", Timeout: timeout})
	if res.Status != http.StatusOK {
		return false
	}
	var body struct {
		OK bool `json:"ok"`
	}
	return res.Decode(&body) == nil && body.OK
}

// Health probes the bound server.
func (a *API) Health(ctx context.Context) bool {
	return CheckHealth(ctx, a.c, a.HealthTimeout)
}

// HandshakeResult is the answer of POST /handshake.
type HandshakeResult struct {
	Valid      bool   `json:"valid"`
	Token      string `json:"token,omitempty"`
	InstanceID string `json:"instanceId,omitempty"`
}

// Handshake identifies the server instance.
func (a *API) Handshake(ctx context.Context) (HandshakeResult, error) {
	var out HandshakeResult
	err := a.send(ctx, http.MethodPost, "/handshake", nil, false, &out)
	return out, err
}

// ----- features -----

// MobileFeature reports whether the waiter app is enabled on the server.
func (a *API) MobileFeature(ctx context.Context) (bool, error) {
	var out struct {
		MobileEnabled *bool `json:"mobileEnabled"`
	}
	if err := a.get(ctx, "/features/mobile", nil, false, &out); err != nil {
		return false, err
	}
	if out.MobileEnabled == nil {
		return false, malformed("mobileEnabled missing")
	}
	return *out.MobileEnabled, nil
}

// OwnerHeader carries the owner password on back-office calls.
const OwnerHeader = "X-Owner-Password"

// SetMobileFeature toggles the waiter app flag.  It is a back-office call
// authorized by the owner password.
func (a *API) SetMobileFeature(ctx context.Context, ownerPassword string, enabled bool) error {
	res := a.c.Do(ctx, transport.Request{
		Method: http.MethodPut,
		Path:   "/features/mobile",
		Body:   map[string]bool{"enabled": enabled},
		Header: http.Header{OwnerHeader: {ownerPassword}},
	})
	return res.AsError()
}

// MenuItemPatch lists the menu item fields to change; nil fields are kept.
type MenuItemPatch struct {
	Available *bool
	Price     *model.Money
}

// UpdateMenuItem changes a menu item's availability or price.  The server
// broadcasts menu:item:update to every connected client.
func (a *API) UpdateMenuItem(ctx context.Context, ownerPassword string, id int64, p MenuItemPatch) (model.MenuItem, error) {
	body := map[string]any{}
	if p.Available != nil {
		body["available"] = *p.Available
	}
	if p.Price != nil {
		body["price"] = p.Price.Float()
	}
	res := a.c.Do(ctx, transport.Request{
		Method: http.MethodPatch,
		Path:   fmt.Sprintf("/menu/items/%d", id),
		Body:   body,
		Header: http.Header{OwnerHeader: {ownerPassword}},
	})
	var raw apiMenuItem
	if err := res.Decode(&raw); err != nil {
		return model.MenuItem{}, err
	}
	return mapMenuItem(raw), nil
}

// ----- owner & waiters -----

// VerifyOwner checks the owner password.  A rejected password yields
// (false, err) where err carries the server message.
func (a *API) VerifyOwner(ctx context.Context, password string) (bool, error) {
	res := a.c.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/owner/verify",
		Body:   map[string]string{"password": password},
	})
	if res.Err != nil {
		return false, res.Err
	}
	var out struct {
		OK bool `json:"ok"`
	}
	if err := res.Decode(&out); err != nil {
		return false, err
	}
	return out.OK, nil
}

// ActiveWaiters lists waiters that may log in.
func (a *API) ActiveWaiters(ctx context.Context) ([]model.Waiter, error) {
	var raw []apiWaiter
	if err := a.get(ctx, "/waiters/active", nil, false, &raw); err != nil {
		return nil, err
	}
	out := make([]model.Waiter, 0, len(raw))
	for _, w := range raw {
		out = append(out, model.Waiter{ID: w.ID, Name: w.Name})
	}
	return out, nil
}

// WaiterLogin exchanges a waiter id and PIN for a session.
func (a *API) WaiterLogin(ctx context.Context, waiterID int64, pin string) (model.WaiterSession, error) {
	var out struct {
		Waiter      *apiWaiter `json:"waiter"`
		AccessToken string     `json:"accessToken"`
		LastCheckin string     `json:"lastCheckin"`
	}
	body := map[string]any{"waiterId": waiterID, "pin": pin}
	if err := a.send(ctx, http.MethodPost, "/waiter/login", body, false, &out); err != nil {
		return model.WaiterSession{}, err
	}
	if out.Waiter == nil || out.AccessToken == "" {
		return model.WaiterSession{}, malformed("waiter or accessToken missing")
	}
	return model.WaiterSession{
		WaiterID:    out.Waiter.ID,
		WaiterName:  out.Waiter.Name,
		AccessToken: out.AccessToken,
		LastCheckin: parseTime(out.LastCheckin),
	}, nil
}

// WaiterActive asks whether a waiter's shift is still active.
func (a *API) WaiterActive(ctx context.Context, waiterID int64) (bool, error) {
	var out struct {
		Active bool `json:"active"`
	}
	q := url.Values{"waiterId": {strconv.FormatInt(waiterID, 10)}}
	if err := a.get(ctx, "/waiter/status", q, true, &out); err != nil {
		return false, err
	}
	return out.Active, nil
}

// ----- menu & tables -----

// Menu fetches categories and items.
func (a *API) Menu(ctx context.Context) (model.Menu, error) {
	var raw apiMenu
	if err := a.get(ctx, "/menu", nil, true, &raw); err != nil {
		return model.Menu{}, err
	}
	return mapMenu(raw), nil
}

// Tables fetches the floor plan.
func (a *API) Tables(ctx context.Context) ([]model.Table, error) {
	var raw []apiTable
	if err := a.get(ctx, "/tables", nil, true, &raw); err != nil {
		return nil, err
	}
	out := make([]model.Table, 0, len(raw))
	for _, t := range raw {
		out = append(out, model.Table{ID: t.ID, Number: t.Number, Seats: t.Seats, Status: model.TableStatus(t.Status)})
	}
	return out, nil
}

// ----- orders -----

// OpenOrder returns the open order of a table or nil when it has none.
func (a *API) OpenOrder(ctx context.Context, tableID int64) (*model.Order, error) {
	var raw *apiOrder
	q := url.Values{"tableId": {strconv.FormatInt(tableID, 10)}}
	if err := a.get(ctx, "/orders/open", q, true, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	o := mapOrder(*raw)
	return &o, nil
}

// CreateOrder opens a new order with its first items.
func (a *API) CreateOrder(ctx context.Context, in CreateOrderInput) (model.Order, error) {
	var raw apiOrder
	if err := a.send(ctx, http.MethodPost, "/orders", in, true, &raw); err != nil {
		return model.Order{}, err
	}
	return mapOrder(raw), nil
}

// AddItems appends items to an order and returns the server's full order.
func (a *API) AddItems(ctx context.Context, orderID int64, items []ItemInput) (model.Order, error) {
	var raw apiOrder
	path := fmt.Sprintf("/orders/%d/items", orderID)
	if err := a.send(ctx, http.MethodPost, path, map[string]any{"items": items}, true, &raw); err != nil {
		return model.Order{}, err
	}
	return mapOrder(raw), nil
}

// UpdateStatus moves an order to status.  version is sent when non-zero so
// the server can reject stale updates with 409.
func (a *API) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus, version int64) (model.Order, error) {
	body := map[string]any{"status": status}
	if version > 0 {
		body["version"] = version
	}
	var raw apiOrder
	path := fmt.Sprintf("/orders/%d/status", orderID)
	if err := a.send(ctx, http.MethodPatch, path, body, true, &raw); err != nil {
		return model.Order{}, err
	}
	return mapOrder(raw), nil
}

// Order fetches one order.
func (a *API) Order(ctx context.Context, orderID int64) (model.Order, error) {
	var raw apiOrder
	if err := a.get(ctx, fmt.Sprintf("/orders/%d", orderID), nil, true, &raw); err != nil {
		return model.Order{}, err
	}
	return mapOrder(raw), nil
}

// ActiveOrders lists every order the server considers active.  Callers
// showing them to a waiter must still filter with model.FilterVisible.
func (a *API) ActiveOrders(ctx context.Context) ([]model.Order, error) {
	var raw []apiOrder
	if err := a.get(ctx, "/orders/active", nil, true, &raw); err != nil {
		return nil, err
	}
	out := make([]model.Order, 0, len(raw))
	for _, o := range raw {
		out = append(out, mapOrder(o))
	}
	return out, nil
}
