package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/iliyamo/pos-waiter/internal/app"
	"github.com/iliyamo/pos-waiter/internal/model"
	"github.com/iliyamo/pos-waiter/internal/orders"
	"github.com/iliyamo/pos-waiter/internal/session"
	"github.com/iliyamo/pos-waiter/internal/store"
)

const helpText = `login:
  scan                      find POS servers on the LAN
  connect <ip[:port]>       bind a server, handshake and check the feature flag
  feature                   re-check the mobile feature flag
  owner <password>          verify the owner password
  waiters                   list active waiters
  select <waiterId>         pick a waiter
  pin <pin>                 log the selected waiter in
  back                      pick another waiter
  active                    check the waiter's shift
  logout | disconnect
orders:
  menu | tables | orders
  open <tableId>            load a table's open order
  add <menuItemId> <qty> [notes...]
  rm <index>                remove a draft line
  draft | show
  create <tableId> [type]   open an order with the draft (tableId 0 for none)
  submit                    send the draft to the current order
  status <status>           pending|preparing|ready|served|paid
  reload
settings:
  theme [light|dark]        show or change the saved UI theme
  quit`

type shell struct {
	app *app.App
	out io.Writer
}

func (s *shell) printf(format string, args ...any) { fmt.Fprintf(s.out, format, args...) }

func (s *shell) exec(ctx context.Context, line string) (quit bool) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false
	}
	if args[0] == "quit" || args[0] == "exit" {
		return true
	}
	s.run(ctx, args)
	return false
}

func (s *shell) run(ctx context.Context, args []string) {
	if err := s.dispatch(ctx, args); err != nil {
		s.printf("error: %v\n", err)
	}
}

func (s *shell) dispatch(ctx context.Context, args []string) error {
	a := s.app
	m := a.Session
	switch args[0] {
	case "help":
		s.printf("%s\n", helpText)
	case "scan":
		s.printf("scanning...\n")
		found, err := a.Scanner.Scan(ctx)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			s.printf("no servers found\n")
		}
		for _, b := range found {
			s.printf("  %s\n", b.Address())
		}
	case "connect":
		if len(args) < 2 {
			return errors.New("usage: connect <ip[:port]>")
		}
		b, err := session.ParseAddress(args[1], a.Cfg.Port)
		if err != nil {
			return err
		}
		if err := m.ConnectServer(ctx, b); err != nil {
			return err
		}
		if err := m.Handshake(ctx); err != nil {
			return err
		}
		return s.feature(ctx)
	case "feature":
		return s.feature(ctx)
	case "owner":
		err := m.VerifyOwner(ctx, strings.Join(args[1:], " "))
		if err != nil && m.State() != session.WaiterSelect {
			return err
		}
		if err != nil {
			// verified, but the waiter list did not load
			s.printf("waiters: %v, retry with 'waiters'\n", err)
		}
		s.waiters()
	case "waiters":
		if err := m.RefreshWaiters(ctx); err != nil {
			return err
		}
		s.waiters()
	case "select":
		id, err := intArg(args, 1)
		if err != nil {
			return err
		}
		return m.SelectWaiter(id)
	case "pin":
		if len(args) < 2 {
			return errors.New("usage: pin <pin>")
		}
		if err := m.SubmitPin(ctx, args[1]); err != nil {
			return err
		}
		if err := a.LoadCatalog(ctx); err != nil {
			return err
		}
		s.printf("welcome %s\n", m.Session().WaiterName)
	case "back":
		return m.BackToWaiters()
	case "active":
		if err := m.CheckActive(ctx); err != nil {
			return err
		}
		s.printf("shift active\n")
	case "logout":
		return m.Logout(ctx)
	case "disconnect":
		return m.Disconnect(ctx)
	case "menu":
		if _, err := a.Catalog.LoadMenu(ctx); err != nil {
			return err
		}
		for _, it := range a.Catalog.Menu().Items {
			avail := ""
			if !it.Available {
				avail = " (unavailable)"
			}
			s.printf("  %3d  %-24s %10s  %s%s\n", it.ID, it.Name, it.Price, it.Category, avail)
		}
	case "tables":
		if _, err := a.Catalog.LoadTables(ctx); err != nil {
			return err
		}
		for _, t := range a.Catalog.Tables() {
			s.printf("  %3d  %-4s seats=%d  %s\n", t.ID, t.Number, t.Seats, t.Status)
		}
	case "orders":
		list, err := a.Orders.ActiveOrders(ctx)
		if err != nil {
			return err
		}
		for _, o := range list {
			s.printOrderLine(o)
		}
	case "open":
		id, err := intArg(args, 1)
		if err != nil {
			return err
		}
		o, err := a.Orders.FetchOpenOrder(ctx, id)
		if err != nil {
			return err
		}
		if o == nil {
			s.printf("table %d has no open order\n", id)
			return nil
		}
		s.printOrder(*o)
	case "add":
		return s.addDraft(args)
	case "rm":
		i, err := intArg(args, 1)
		if err != nil {
			return err
		}
		return a.Orders.RemoveDraftItem(int(i))
	case "draft":
		for i, d := range a.Orders.Draft() {
			s.printf("  [%d] %dx %s %s %s\n", i, d.Quantity, d.Name, d.UnitPrice, d.Notes)
		}
		s.printf("  draft total %s\n", a.Orders.DraftTotal())
	case "show":
		if o := a.Orders.Current(); o != nil {
			s.printOrder(*o)
		} else {
			s.printf("no current order\n")
		}
	case "create":
		id, err := intArg(args, 1)
		if err != nil {
			return err
		}
		typ := model.OrderDineIn
		if len(args) > 2 {
			typ = model.OrderType(args[2])
		}
		o, err := a.Orders.CreateOrder(ctx, id, typ)
		if err != nil {
			return err
		}
		s.printOrder(o)
	case "submit":
		if err := a.Orders.SubmitDraft(ctx); err != nil {
			return err
		}
		s.showCurrent()
	case "status":
		if len(args) < 2 {
			return errors.New("usage: status <status>")
		}
		err := a.Orders.UpdateStatus(ctx, model.OrderStatus(args[1]))
		if errors.Is(err, orders.ErrVersionConflict) {
			s.printf("order changed on the server; reloaded, try again\n")
			s.showCurrent()
			return nil
		}
		if err != nil {
			return err
		}
		s.showCurrent()
	case "reload":
		if err := a.Orders.ReloadOrder(ctx); err != nil {
			return err
		}
		s.showCurrent()
	case "theme":
		return s.theme(ctx, args)
	default:
		return fmt.Errorf("unknown command %q, try help", args[0])
	}
	return nil
}

func (s *shell) theme(ctx context.Context, args []string) error {
	local := store.Local{S: s.app.Store}
	if len(args) < 2 {
		t, err := local.Theme(ctx)
		if err != nil {
			return err
		}
		if t == "" {
			t = "light"
		}
		s.printf("theme: %s\n", t)
		return nil
	}
	switch args[1] {
	case "light", "dark":
	default:
		return fmt.Errorf("unknown theme %q, want light or dark", args[1])
	}
	if err := local.SetTheme(ctx, args[1]); err != nil {
		return err
	}
	s.printf("theme: %s\n", args[1])
	return nil
}

func (s *shell) feature(ctx context.Context) error {
	err := s.app.Session.CheckFeature(ctx)
	if errors.Is(err, session.ErrFeatureDisabled) {
		s.printf("mobile ordering is disabled on this server; ask the owner to enable it, then run 'feature'\n")
		return nil
	}
	if err != nil {
		return err
	}
	s.printf("server ready, enter the owner password with 'owner <password>'\n")
	return nil
}

func (s *shell) addDraft(args []string) error {
	id, err := intArg(args, 1)
	if err != nil {
		return err
	}
	qty, err := intArg(args, 2)
	if err != nil {
		return err
	}
	it, ok := s.app.Catalog.Menu().Item(id)
	if !ok {
		return fmt.Errorf("menu item %d not loaded, run 'menu'", id)
	}
	if !it.Available {
		return fmt.Errorf("%s is unavailable", it.Name)
	}
	return s.app.Orders.AddDraftItem(model.DraftItem{
		MenuItemID: it.ID,
		Name:       it.Name,
		Quantity:   int(qty),
		UnitPrice:  it.Price,
		Notes:      strings.Join(args[3:], " "),
	})
}

func (s *shell) waiters() {
	for _, w := range s.app.Session.Snapshot().Waiters {
		s.printf("  %d  %s\n", w.ID, w.Name)
	}
}

func (s *shell) status() {
	snap := s.app.Session.Snapshot()
	s.printf("state: %s", snap.State)
	if snap.Binding != nil {
		s.printf("  server: %s", snap.Binding.Address())
	}
	if snap.Session != nil {
		s.printf("  waiter: %s", snap.Session.WaiterName)
	}
	s.printf("\n")
}

func (s *shell) showCurrent() {
	if o := s.app.Orders.Current(); o != nil {
		s.printOrder(*o)
	}
}

func (s *shell) printOrderLine(o model.Order) {
	table := "-"
	if o.TableNumber != "" {
		table = o.TableNumber
	}
	s.printf("  #%d  %-9s table=%s  %s  %s\n", o.ID, o.Type, table, o.Status, o.Total)
}

func (s *shell) printOrder(o model.Order) {
	s.printOrderLine(o)
	for _, it := range o.Items {
		s.printf("      %dx %-24s %s\n", it.Quantity, it.Name, it.UnitPrice)
	}
}

func intArg(args []string, i int) (int64, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("%s: missing argument", args[0])
	}
	n, err := strconv.ParseInt(args[i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", args[0], args[i])
	}
	return n, nil
}
