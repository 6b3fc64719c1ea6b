// Package session drives the waiter login flow: bind a server, handshake,
// check the mobile feature flag, verify the owner password, pick a waiter
// and log in with a PIN.  It is the only writer of the bound address and the
// bearer token held by the transport Target.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/iliyamo/pos-waiter/internal/logging"
	"github.com/iliyamo/pos-waiter/internal/model"
	"github.com/iliyamo/pos-waiter/internal/posapi"
	"github.com/iliyamo/pos-waiter/internal/store"
	"github.com/iliyamo/pos-waiter/internal/transport"
)

// API is the part of the POS REST surface the login flow needs.
type API interface {
	Handshake(ctx context.Context) (posapi.HandshakeResult, error)
	MobileFeature(ctx context.Context) (bool, error)
	VerifyOwner(ctx context.Context, password string) (bool, error)
	ActiveWaiters(ctx context.Context) ([]model.Waiter, error)
	WaiterLogin(ctx context.Context, waiterID int64, pin string) (model.WaiterSession, error)
	WaiterActive(ctx context.Context, waiterID int64) (bool, error)
}

// Options tune a Machine.
type Options struct {
	DefaultPort   int           // port assumed when an address has none (4000)
	HealthTimeout time.Duration // ConnectServer probe timeout (2s)
	Logger        *slog.Logger
}

// Machine is the login state machine.  Methods are safe for concurrent use;
// only one network step runs at a time and Logout/Disconnect may interrupt it.
type Machine struct {
	api    API
	client *transport.Client
	local  store.Local
	opts   Options

	mu        sync.Mutex
	state     State
	epoch     uint64
	busy      bool
	errs      map[State]string
	binding   *model.ServerBinding
	instance  string
	blocked   bool
	owner     bool
	waiters   []model.Waiter
	selected  *model.Waiter
	session   *model.WaiterSession
	observers []func(Snapshot)
}

// New returns a machine in AddressEntry.  client must be the transport
// client api issues its requests through.
func New(api API, client *transport.Client, st store.Store, opts Options) *Machine {
	if opts.DefaultPort == 0 {
		opts.DefaultPort = model.DefaultPort
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = posapi.DefaultHealthTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Machine{
		api:    api,
		client: client,
		local:  store.Local{S: st},
		opts:   opts,
		errs:   map[State]string{},
	}
}

// OnChange registers an observer called after every state change.
func (m *Machine) OnChange(fn func(Snapshot)) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// State returns the current step.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Blocked reports whether the bound server has mobile ordering disabled.
func (m *Machine) Blocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blocked
}

// Session returns a copy of the waiter session, nil before login.
func (m *Machine) Session() *model.WaiterSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// ErrorFor returns the last error text recorded for state s.
func (m *Machine) ErrorFor(s State) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs[s]
}

// Snapshot returns the current view of the flow.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		State:         m.state,
		InstanceID:    m.instance,
		Blocked:       m.blocked,
		OwnerVerified: m.owner,
		Waiters:       append([]model.Waiter(nil), m.waiters...),
		Error:         m.errs[m.state],
	}
	if m.binding != nil {
		b := *m.binding
		s.Binding = &b
	}
	if m.selected != nil {
		w := *m.selected
		s.Selected = &w
	}
	if m.session != nil {
		ss := *m.session
		s.Session = &ss
	}
	return s
}

// ----- step bookkeeping -----

// acquire reserves the machine for one step that must start in want.
func (m *Machine) acquire(want State) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != want {
		return 0, fmt.Errorf("%w: in %s, step needs %s", ErrInvalidTransition, m.state, want)
	}
	if m.busy {
		return 0, ErrBusy
	}
	m.busy = true
	return m.epoch, nil
}

func (m *Machine) release() {
	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
}

// settle locks the machine again after a network call.  It fails with
// ErrStale when Logout or Disconnect ran in the meantime.  On success the
// caller holds m.mu and must call commit.
func (m *Machine) settle(epoch uint64) error {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrStale
	}
	return nil
}

// commit moves to next (when it differs), unlocks and notifies observers.
func (m *Machine) commit(next State) {
	if next != m.state {
		m.state = next
		m.epoch++
		delete(m.errs, next)
	}
	snap := m.snapshotLocked()
	obs := slices.Clone(m.observers)
	m.mu.Unlock()
	for _, fn := range obs {
		fn(snap)
	}
}

// fail records err for the current state, optionally moving to next.
func (m *Machine) fail(next State, err error) error {
	if next != m.state {
		m.state = next
		m.epoch++
	}
	m.errs[m.state] = message(err)
	m.commit(m.state)
	return err
}

// ----- flow -----

// Start restores persisted state.  A stored waiter session and address go
// straight to Authenticated; an address alone resumes at Handshake.
func (m *Machine) Start(ctx context.Context) (State, error) {
	addr, err := m.local.Address(ctx)
	if err != nil {
		return m.State(), err
	}
	sess, err := m.local.Session(ctx)
	if err != nil {
		m.opts.Logger.Warn("ignoring unreadable waiter session", "error", err)
		sess = nil
	}
	tok, _ := m.local.Token(ctx)
	if tok == "" && sess != nil {
		tok = sess.AccessToken
	}

	m.mu.Lock()
	if m.state != AddressEntry {
		st := m.state
		m.mu.Unlock()
		return st, fmt.Errorf("%w: already started in %s", ErrInvalidTransition, st)
	}
	if addr == "" {
		m.commit(AddressEntry)
		return AddressEntry, nil
	}
	b, err := ParseAddress(addr, m.opts.DefaultPort)
	if err != nil {
		m.mu.Unlock()
		m.opts.Logger.Warn("ignoring unparsable stored address", "address", addr)
		return AddressEntry, nil
	}
	b.State = model.Connected
	m.binding = &b
	m.client.Target().SetBaseURL(b.BaseURL())

	if sess == nil {
		m.commit(Handshake)
		return Handshake, nil
	}
	m.client.Target().SetToken(tok)
	m.session = sess
	m.owner = true
	m.commit(Authenticated)
	m.opts.Logger.Info("restored waiter session", "waiter", sess.WaiterName)
	return Authenticated, nil
}

// SubmitAddress persists addr and binds it.  A persist failure keeps the
// machine in AddressEntry.
func (m *Machine) SubmitAddress(ctx context.Context, addr string) error {
	ep, err := m.acquire(AddressEntry)
	if err != nil {
		return err
	}
	defer m.release()

	b, err := ParseAddress(addr, m.opts.DefaultPort)
	if err != nil {
		m.mu.Lock()
		return m.fail(AddressEntry, err)
	}
	return m.bind(ctx, ep, b)
}

// ConnectServer probes b with a scoped health check on the shared client
// and binds it when it answers.
func (m *Machine) ConnectServer(ctx context.Context, b model.ServerBinding) error {
	ep, err := m.acquire(AddressEntry)
	if err != nil {
		return err
	}
	defer m.release()

	m.mu.Lock()
	checking := b
	checking.State = model.Checking
	m.binding = &checking
	m.commit(AddressEntry)

	var ok bool
	m.client.WithAddress(b.BaseURL(), func(c *transport.Client) transport.Result {
		ok = posapi.CheckHealth(ctx, c, m.opts.HealthTimeout)
		return transport.Result{}
	})

	if err := m.settle(ep); err != nil {
		return err
	}
	if !ok {
		failed := b
		failed.State = model.Disconnected
		m.binding = &failed
		return m.fail(AddressEntry, fmt.Errorf("%w: %s", ErrServerUnreachable, b.Address()))
	}
	m.mu.Unlock()
	return m.bind(ctx, ep, b)
}

func (m *Machine) bind(ctx context.Context, ep uint64, b model.ServerBinding) error {
	if err := m.settle(ep); err != nil {
		return err
	}
	// Persisted under m.mu, after settle, so a racing Disconnect leaves nothing.
	if perr := m.local.SetAddress(ctx, b.BaseURL()); perr != nil {
		m.opts.Logger.Error("persist server address failed", "error", perr)
		return m.fail(AddressEntry, fmt.Errorf("could not save server address: %w", perr))
	}
	b.State = model.Connected
	m.binding = &b
	m.blocked = false
	m.client.Target().SetBaseURL(b.BaseURL())
	m.commit(Handshake)
	m.opts.Logger.Info("server bound", "address", b.Address())
	return nil
}

// Handshake identifies the bound server.  Any failure returns the flow to
// AddressEntry.
func (m *Machine) Handshake(ctx context.Context) error {
	ep, err := m.acquire(Handshake)
	if err != nil {
		return err
	}
	defer m.release()

	res, err := m.api.Handshake(ctx)
	if err == nil && !res.Valid {
		err = ErrHandshakeRejected
	}
	if serr := m.settle(ep); serr != nil {
		return serr
	}
	if err != nil {
		m.binding = nil
		m.client.Target().Clear()
		return m.fail(AddressEntry, err)
	}
	if res.Token != "" {
		if perr := m.local.SetHandshakeToken(ctx, res.Token); perr != nil {
			m.opts.Logger.Warn("persist handshake token failed", "error", perr)
		}
	}
	m.instance = res.InstanceID
	m.commit(FeatureCheck)
	return nil
}

// CheckFeature reads the mobile flag.  A disabled flag or a failed query
// keeps the machine in FeatureCheck; Blocked reports the former.
func (m *Machine) CheckFeature(ctx context.Context) error {
	ep, err := m.acquire(FeatureCheck)
	if err != nil {
		return err
	}
	defer m.release()

	enabled, err := m.api.MobileFeature(ctx)
	if serr := m.settle(ep); serr != nil {
		return serr
	}
	if err != nil {
		return m.fail(FeatureCheck, err)
	}
	if !enabled {
		m.blocked = true
		return m.fail(FeatureCheck, ErrFeatureDisabled)
	}
	m.blocked = false
	m.commit(OwnerVerify)
	return nil
}

// VerifyOwner checks the owner password, then loads the active waiters.
// A rejected password keeps the machine in OwnerVerify.  When the waiter
// list fails to load the machine still advances; RefreshWaiters retries.
func (m *Machine) VerifyOwner(ctx context.Context, password string) error {
	ep, err := m.acquire(OwnerVerify)
	if err != nil {
		return err
	}
	defer m.release()

	if password == "" {
		m.mu.Lock()
		return m.fail(OwnerVerify, ErrEmptyPassword)
	}
	ok, err := m.api.VerifyOwner(ctx, password)
	if err == nil && !ok {
		err = ErrOwnerRejected
	}
	if err != nil {
		if serr := m.settle(ep); serr != nil {
			return serr
		}
		if transport.IsStatus(err, http.StatusUnauthorized) {
			err = fmt.Errorf("%w: %w", ErrOwnerRejected, err)
		}
		return m.fail(OwnerVerify, err)
	}

	waiters, werr := m.api.ActiveWaiters(ctx)
	if serr := m.settle(ep); serr != nil {
		return serr
	}
	m.owner = true
	m.waiters = waiters
	m.selected = nil
	m.commit(WaiterSelect)
	if werr != nil {
		m.mu.Lock()
		return m.fail(WaiterSelect, werr)
	}
	return nil
}

// RefreshWaiters reloads the active waiter list.
func (m *Machine) RefreshWaiters(ctx context.Context) error {
	ep, err := m.acquire(WaiterSelect)
	if err != nil {
		return err
	}
	defer m.release()

	waiters, err := m.api.ActiveWaiters(ctx)
	if serr := m.settle(ep); serr != nil {
		return serr
	}
	if err != nil {
		return m.fail(WaiterSelect, err)
	}
	m.waiters = waiters
	delete(m.errs, WaiterSelect)
	m.commit(WaiterSelect)
	return nil
}

// SelectWaiter picks a waiter from the fetched list.  No network call.
func (m *Machine) SelectWaiter(waiterID int64) error {
	if _, err := m.acquire(WaiterSelect); err != nil {
		return err
	}
	defer m.release()

	m.mu.Lock()
	for _, w := range m.waiters {
		if w.ID == waiterID {
			sel := w
			m.selected = &sel
			m.commit(WaiterPin)
			return nil
		}
	}
	return m.fail(WaiterSelect, fmt.Errorf("%w: %d", ErrUnknownWaiter, waiterID))
}

// BackToWaiters leaves the PIN step to pick another waiter.
func (m *Machine) BackToWaiters() error {
	if _, err := m.acquire(WaiterPin); err != nil {
		return err
	}
	defer m.release()

	m.mu.Lock()
	m.selected = nil
	m.commit(WaiterSelect)
	return nil
}

// SubmitPin logs the selected waiter in.  On success the session is
// persisted and its token installed; on failure the machine stays in
// WaiterPin and the returned error carries the server's code and message.
func (m *Machine) SubmitPin(ctx context.Context, pin string) error {
	ep, err := m.acquire(WaiterPin)
	if err != nil {
		return err
	}
	defer m.release()

	m.mu.Lock()
	if pin == "" {
		return m.fail(WaiterPin, ErrEmptyPIN)
	}
	waiter := *m.selected
	m.mu.Unlock()

	sess, err := m.api.WaiterLogin(ctx, waiter.ID, pin)
	if serr := m.settle(ep); serr != nil {
		return serr
	}
	if err != nil {
		return m.fail(WaiterPin, err)
	}
	// Persisted under m.mu, after settle, so a racing Logout leaves nothing.
	if perr := m.local.SetSession(ctx, sess); perr != nil {
		m.opts.Logger.Warn("persist waiter session failed", "error", perr)
	}
	if perr := m.local.SetToken(ctx, sess.AccessToken); perr != nil {
		m.opts.Logger.Warn("persist token failed", "error", perr)
	}
	m.session = &sess
	m.client.Target().SetToken(sess.AccessToken)
	m.commit(Authenticated)
	m.opts.Logger.Info("waiter logged in", "waiter_id", sess.WaiterID, "waiter", sess.WaiterName)
	return nil
}

// CheckActive asks the server whether the waiter's shift is still active
// and logs out when it is not (or when the token was rejected).
func (m *Machine) CheckActive(ctx context.Context) error {
	ep, err := m.acquire(Authenticated)
	if err != nil {
		return err
	}
	m.mu.Lock()
	id := m.session.WaiterID
	m.mu.Unlock()

	active, err := m.api.WaiterActive(ctx, id)
	m.release()
	if err != nil && !transport.IsStatus(err, http.StatusUnauthorized) {
		return err
	}
	if err == nil && active {
		return nil
	}
	m.mu.Lock()
	stale := m.epoch != ep
	m.mu.Unlock()
	if stale {
		return ErrStale
	}
	if lerr := m.Logout(ctx); lerr != nil {
		return lerr
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSessionInactive, err)
	}
	return ErrSessionInactive
}

// Logout ends the waiter session and returns to Handshake, keeping the
// bound address.  Without an address it returns to AddressEntry.
func (m *Machine) Logout(ctx context.Context) error {
	m.mu.Lock()
	if m.state == AddressEntry {
		st := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: logout from %s", ErrInvalidTransition, st)
	}
	m.clearWaiterLocked()
	m.client.Target().ClearToken()
	next := Handshake
	if m.binding == nil {
		next = AddressEntry
	}
	m.epoch++
	m.errs = map[State]string{}
	m.commit(next)

	return errors.Join(m.local.ClearSession(ctx), m.local.ClearToken(ctx))
}

// Disconnect forgets the server as well: address, handshake data and the
// waiter session are all cleared and the flow restarts at AddressEntry.
func (m *Machine) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	m.clearWaiterLocked()
	m.binding = nil
	m.instance = ""
	m.blocked = false
	m.client.Target().Clear()
	m.epoch++
	m.errs = map[State]string{}
	m.commit(AddressEntry)

	return errors.Join(
		m.local.ClearSession(ctx),
		m.local.ClearToken(ctx),
		m.local.ClearAddress(ctx),
		m.local.ClearHandshakeToken(ctx),
	)
}

func (m *Machine) clearWaiterLocked() {
	m.session = nil
	m.owner = false
	m.waiters = nil
	m.selected = nil
}
