package session

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/pos-waiter/internal/logging"
	"github.com/iliyamo/pos-waiter/internal/model"
	"github.com/iliyamo/pos-waiter/internal/posapi"
	"github.com/iliyamo/pos-waiter/internal/posmock"
	"github.com/iliyamo/pos-waiter/internal/store"
	"github.com/iliyamo/pos-waiter/internal/transport"
)

type harness struct {
	mock   *posmock.Server
	http   *httptest.Server
	client *transport.Client
	st     *store.Memory
	m      *Machine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mock, err := posmock.New(posmock.TestConfig())
	require.NoError(t, err)
	srv := httptest.NewServer(mock.Echo)
	t.Cleanup(srv.Close)
	h := &harness{mock: mock, http: srv, st: store.NewMemory()}
	h.client = transport.New(transport.NewTarget(2*time.Second), logging.Discard())
	h.m = New(posapi.New(h.client), h.client, h.st, Options{HealthTimeout: time.Second})
	return h
}

// addr returns the mock's "ip:port".
func (h *harness) addr() string { return h.http.Listener.Addr().String() }

func (h *harness) binding(t *testing.T) model.ServerBinding {
	t.Helper()
	host, port, err := net.SplitHostPort(h.addr())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return model.NewBinding(host, p)
}

// toOwnerVerify walks the flow up to the owner password step.
func (h *harness) toOwnerVerify(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.m.SubmitAddress(ctx, h.addr()))
	require.NoError(t, h.m.Handshake(ctx))
	require.NoError(t, h.m.CheckFeature(ctx))
	require.Equal(t, OwnerVerify, h.m.State())
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	h.toOwnerVerify(t)
	require.NoError(t, h.m.VerifyOwner(ctx, "owner"))
	require.NoError(t, h.m.SelectWaiter(1))
	require.NoError(t, h.m.SubmitPin(ctx, "1234"))
	require.Equal(t, Authenticated, h.m.State())
}

func TestParseAddress(t *testing.T) {
	cases := []struct {
		in   string
		ip   string
		port int
		ok   bool
	}{
		{"192.168.1.20", "192.168.1.20", model.DefaultPort, true},
		{" 192.168.1.20:3000 ", "192.168.1.20", 3000, true},
		{"http://pos.local:8080", "pos.local", 8080, true},
		{"", "", 0, false},
		{"ftp://192.168.1.20", "", 0, false},
		{"192.168.1.20:99999", "", 0, false},
		{"192.168.1.20:abc", "", 0, false},
	}
	for _, tc := range cases {
		b, err := ParseAddress(tc.in, model.DefaultPort)
		if !tc.ok {
			assert.ErrorIs(t, err, ErrInvalidAddress, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.ip, b.IP)
		assert.Equal(t, tc.port, b.Port)
	}
}

func TestFullLoginFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var seen []State
	h.m.OnChange(func(s Snapshot) { seen = append(seen, s.State) })

	h.toOwnerVerify(t)
	snap := h.m.Snapshot()
	require.NotNil(t, snap.Binding)
	assert.Equal(t, model.Connected, snap.Binding.State)
	assert.NotEmpty(t, snap.InstanceID)

	require.NoError(t, h.m.VerifyOwner(ctx, "owner"))
	snap = h.m.Snapshot()
	assert.Equal(t, WaiterSelect, snap.State)
	assert.True(t, snap.OwnerVerified)
	require.Len(t, snap.Waiters, 3)
	assert.Equal(t, "Ali", snap.Waiters[0].Name)

	require.NoError(t, h.m.SelectWaiter(1))
	require.NoError(t, h.m.SubmitPin(ctx, "1234"))

	sess := h.m.Session()
	require.NotNil(t, sess)
	assert.Equal(t, int64(1), sess.WaiterID)
	assert.Equal(t, "Ali", sess.WaiterName)
	assert.Equal(t, sess.AccessToken, h.client.Target().Token())
	assert.Equal(t, "http://"+h.addr(), h.client.Target().BaseURL())

	stored, err := store.Local{S: h.st}.Session(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Ali", stored.WaiterName)
	tok, err := store.Local{S: h.st}.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess.AccessToken, tok)

	assert.Equal(t, []State{Handshake, FeatureCheck, OwnerVerify, WaiterSelect, WaiterPin, Authenticated}, seen)
}

func TestStepsRejectWrongState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.m.Handshake(ctx), ErrInvalidTransition)
	assert.ErrorIs(t, h.m.VerifyOwner(ctx, "owner"), ErrInvalidTransition)
	assert.ErrorIs(t, h.m.SubmitPin(ctx, "1234"), ErrInvalidTransition)
	assert.ErrorIs(t, h.m.Logout(ctx), ErrInvalidTransition)
	assert.Equal(t, AddressEntry, h.m.State())
}

func TestInvalidAddressStaysInAddressEntry(t *testing.T) {
	h := newHarness(t)
	err := h.m.SubmitAddress(context.Background(), "ftp://nowhere")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Equal(t, AddressEntry, h.m.State())
	assert.NotEmpty(t, h.m.ErrorFor(AddressEntry))
}

func TestConnectServer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	err = h.m.ConnectServer(ctx, model.NewBinding("127.0.0.1", dead.Port))
	assert.ErrorIs(t, err, ErrServerUnreachable)
	snap := h.m.Snapshot()
	assert.Equal(t, AddressEntry, snap.State)
	require.NotNil(t, snap.Binding)
	assert.Equal(t, model.Disconnected, snap.Binding.State)
	assert.Empty(t, h.client.Target().BaseURL())

	require.NoError(t, h.m.ConnectServer(ctx, h.binding(t)))
	assert.Equal(t, Handshake, h.m.State())
	assert.Equal(t, "http://"+h.addr(), h.client.Target().BaseURL())
	addr, err := store.Local{S: h.st}.Address(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://"+h.addr(), addr)
}

func TestHandshakeFailureReturnsToAddressEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.m.SubmitAddress(ctx, h.addr()))
	h.http.Close()

	require.Error(t, h.m.Handshake(ctx))
	snap := h.m.Snapshot()
	assert.Equal(t, AddressEntry, snap.State)
	assert.Nil(t, snap.Binding)
	assert.NotEmpty(t, snap.Error)
	assert.Empty(t, h.client.Target().BaseURL())
}

func TestFeatureDisabledBlocks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mock.Store.SetMobileEnabled(false)

	require.NoError(t, h.m.SubmitAddress(ctx, h.addr()))
	require.NoError(t, h.m.Handshake(ctx))
	assert.ErrorIs(t, h.m.CheckFeature(ctx), ErrFeatureDisabled)
	assert.Equal(t, FeatureCheck, h.m.State())
	assert.True(t, h.m.Blocked())

	h.mock.Store.SetMobileEnabled(true)
	require.NoError(t, h.m.CheckFeature(ctx))
	assert.False(t, h.m.Blocked())
	assert.Equal(t, OwnerVerify, h.m.State())
}

func TestOwnerPassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.toOwnerVerify(t)

	assert.ErrorIs(t, h.m.VerifyOwner(ctx, ""), ErrEmptyPassword)
	assert.Equal(t, OwnerVerify, h.m.State())

	err := h.m.VerifyOwner(ctx, "wrong")
	assert.ErrorIs(t, err, ErrOwnerRejected)
	assert.True(t, transport.IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, OwnerVerify, h.m.State())
	assert.Equal(t, "Invalid owner password", h.m.ErrorFor(OwnerVerify))
	assert.False(t, h.m.Snapshot().OwnerVerified)

	require.NoError(t, h.m.VerifyOwner(ctx, "owner"))
	assert.Equal(t, WaiterSelect, h.m.State())
}

func TestWaiterSelection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.toOwnerVerify(t)
	require.NoError(t, h.m.VerifyOwner(ctx, "owner"))

	assert.ErrorIs(t, h.m.SelectWaiter(42), ErrUnknownWaiter)
	assert.Equal(t, WaiterSelect, h.m.State())

	require.NoError(t, h.mock.Waiters.SetActive(3, false))
	require.NoError(t, h.m.RefreshWaiters(ctx))
	assert.Len(t, h.m.Snapshot().Waiters, 2)

	require.NoError(t, h.m.SelectWaiter(2))
	assert.Equal(t, "Ayşe", h.m.Snapshot().Selected.Name)
	require.NoError(t, h.m.BackToWaiters())
	assert.Equal(t, WaiterSelect, h.m.State())
	assert.Nil(t, h.m.Snapshot().Selected)
}

func TestWrongPIN(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.toOwnerVerify(t)
	require.NoError(t, h.m.VerifyOwner(ctx, "owner"))
	require.NoError(t, h.m.SelectWaiter(1))

	assert.ErrorIs(t, h.m.SubmitPin(ctx, ""), ErrEmptyPIN)

	err := h.m.SubmitPin(ctx, "0000")
	require.Error(t, err)
	assert.True(t, transport.IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, WaiterPin, h.m.State())
	assert.Nil(t, h.m.Session())
	assert.Equal(t, "Invalid pin", h.m.ErrorFor(WaiterPin))
	assert.Empty(t, h.client.Target().Token())
}

func TestLogoutKeepsAddress(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)

	require.NoError(t, h.m.Logout(ctx))
	assert.Equal(t, Handshake, h.m.State())
	assert.Nil(t, h.m.Session())
	assert.Empty(t, h.client.Target().Token())
	assert.NotEmpty(t, h.client.Target().BaseURL())

	local := store.Local{S: h.st}
	sess, err := local.Session(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)
	addr, err := local.Address(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, addr)

	// the flow runs again from the handshake
	require.NoError(t, h.m.Handshake(ctx))
	assert.Equal(t, FeatureCheck, h.m.State())
}

func TestDisconnectForgetsServer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)

	require.NoError(t, h.m.Disconnect(ctx))
	snap := h.m.Snapshot()
	assert.Equal(t, AddressEntry, snap.State)
	assert.Nil(t, snap.Binding)
	assert.Empty(t, snap.InstanceID)
	assert.Equal(t, transport.Snapshot{}, h.client.Target().Snapshot())

	local := store.Local{S: h.st}
	addr, err := local.Address(ctx)
	require.NoError(t, err)
	assert.Empty(t, addr)
	hs, err := local.HandshakeToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, hs)
}

func TestStartRestoresSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)
	want := h.m.Session()

	// a new process over the same store
	client := transport.New(transport.NewTarget(2*time.Second), logging.Discard())
	m := New(posapi.New(client), client, h.st, Options{})
	st, err := m.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, Authenticated, st)
	got := m.Session()
	require.NotNil(t, got)
	assert.Equal(t, want.WaiterID, got.WaiterID)
	assert.Equal(t, want.WaiterName, got.WaiterName)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.AccessToken, client.Target().Token())
	assert.Equal(t, "http://"+h.addr(), client.Target().BaseURL())

	_, err = m.Start(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStartWithAddressOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, store.Local{S: h.st}.SetAddress(ctx, "http://"+h.addr()))
	// a session without an address is not restored
	other := store.NewMemory()
	require.NoError(t, store.Local{S: other}.SetSession(ctx, model.WaiterSession{WaiterID: 1, WaiterName: "Ali", AccessToken: "x"}))

	st, err := h.m.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, Handshake, st)

	client := transport.New(transport.NewTarget(time.Second), logging.Discard())
	m := New(posapi.New(client), client, other, Options{})
	st, err = m.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, AddressEntry, st)
	assert.Nil(t, m.Session())
}

func TestCheckActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)

	require.NoError(t, h.m.CheckActive(ctx))
	assert.Equal(t, Authenticated, h.m.State())

	require.NoError(t, h.mock.Waiters.SetActive(1, false))
	assert.ErrorIs(t, h.m.CheckActive(ctx), ErrSessionInactive)
	assert.Equal(t, Handshake, h.m.State())
	assert.Nil(t, h.m.Session())
}
