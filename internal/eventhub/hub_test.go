package eventhub

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/iliyamo/pos-waiter/internal/realtime"
)

func newHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := New(func(tok string) error {
		if tok != "good" {
			return errors.New("bad token")
		}
		return nil
	})
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func rawDial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ws, err := websocket.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", "", srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func receive(t *testing.T, ws *websocket.Conn) realtime.Frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f realtime.Frame
	require.NoError(t, websocket.JSON.Receive(ws, &f))
	return f
}

func auth(t *testing.T, ws *websocket.Conn, token string) realtime.Frame {
	t.Helper()
	f, err := realtime.NewFrame(realtime.EventAuth, realtime.AuthPayload{Token: token})
	require.NoError(t, err)
	require.NoError(t, websocket.JSON.Send(ws, f))
	return receive(t, ws)
}

func TestAuthHandshake(t *testing.T) {
	_, srv := newHub(t)

	ws := rawDial(t, srv)
	assert.Equal(t, realtime.EventAuthOK, auth(t, ws, "good").Event)

	bad := rawDial(t, srv)
	reply := auth(t, bad, "nope")
	require.Equal(t, realtime.EventAuthError, reply.Event)
	assert.JSONEq(t, `{"error":"invalid token"}`, string(reply.Data))
}

func TestBroadcastReachesAuthenticatedOnly(t *testing.T) {
	hub, srv := newHub(t)

	good := rawDial(t, srv)
	require.Equal(t, realtime.EventAuthOK, auth(t, good, "good").Event)
	anon := rawDial(t, srv)
	require.Eventually(t, func() bool {
		c, a := hub.Clients()
		return c == 2 && a == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Broadcast(realtime.EventTableUpdate, realtime.TableUpdate{ID: 4, Status: "cleaning"}))

	f := receive(t, good)
	assert.Equal(t, realtime.EventTableUpdate, f.Event)
	assert.JSONEq(t, `{"id":4,"status":"cleaning"}`, string(f.Data))

	require.NoError(t, anon.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	var none realtime.Frame
	assert.Error(t, websocket.JSON.Receive(anon, &none))
}

func TestCloseDisconnectsClients(t *testing.T) {
	hub, srv := newHub(t)
	ws := rawDial(t, srv)
	require.Equal(t, realtime.EventAuthOK, auth(t, ws, "good").Event)

	hub.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f realtime.Frame
	assert.Error(t, websocket.JSON.Receive(ws, &f))
	c, _ := hub.Clients()
	assert.Zero(t, c)
}

func TestRealtimeClientAgainstHub(t *testing.T) {
	hub, srv := newHub(t)

	client := realtime.New(realtime.Options{Attempts: 1, RetryDelay: 10 * time.Millisecond})
	defer client.Disconnect()

	authed := make(chan struct{}, 1)
	updates := make(chan realtime.OrderUpdate, 1)
	client.On(realtime.EventAuthOK, func(realtime.Event) { authed <- struct{}{} })
	client.On(realtime.EventOrderUpdate, func(ev realtime.Event) {
		var p realtime.OrderUpdate
		if ev.Decode(&p) == nil {
			updates <- p
		}
	})

	require.NoError(t, client.Connect(context.Background(), srv.URL, "good"))
	assert.Equal(t, realtime.StateConnected, client.State())

	select {
	case <-authed:
	case <-time.After(2 * time.Second):
		t.Fatal("no auth_ok")
	}
	assert.True(t, client.Authenticated())

	total := 12.5
	require.NoError(t, hub.Broadcast(realtime.EventOrderUpdate, realtime.OrderUpdate{ID: 9, Status: "ready", Total: &total, Version: 3}))
	select {
	case p := <-updates:
		assert.Equal(t, int64(9), p.ID)
		assert.Equal(t, "ready", p.Status)
		assert.Equal(t, int64(3), p.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("no order:update")
	}

	client.Disconnect()
	assert.Equal(t, realtime.StateDisconnected, client.State())
	require.Eventually(t, func() bool {
		c, _ := hub.Clients()
		return c == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRealtimeClientRejectedToken(t *testing.T) {
	_, srv := newHub(t)

	client := realtime.New(realtime.Options{Attempts: 1})
	defer client.Disconnect()
	rejected := make(chan struct{}, 1)
	client.On(realtime.EventAuthError, func(realtime.Event) { rejected <- struct{}{} })

	require.NoError(t, client.Connect(context.Background(), srv.URL, "nope"))
	select {
	case <-rejected:
	case <-time.After(2 * time.Second):
		t.Fatal("no auth_error")
	}
	assert.False(t, client.Authenticated())
}

// stateLog records the realtime client's state transitions.
type stateLog struct {
	mu     sync.Mutex
	states []realtime.State
}

func (l *stateLog) add(s realtime.State) {
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *stateLog) get() []realtime.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]realtime.State(nil), l.states...)
}

func TestRealtimeConnectWhileConnectedIsNoOp(t *testing.T) {
	hub, srv := newHub(t)

	client := realtime.New(realtime.Options{Attempts: 1})
	defer client.Disconnect()
	var log stateLog
	client.OnStateChange(log.add)

	require.NoError(t, client.Connect(context.Background(), srv.URL, "good"))
	require.Eventually(t, func() bool {
		c, a := hub.Clients()
		return c == 1 && a == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Connect(context.Background(), srv.URL, "good"))
	assert.Equal(t, realtime.StateConnected, client.State())
	assert.Equal(t, []realtime.State{realtime.StateConnecting, realtime.StateConnected}, log.get())
	c, _ := hub.Clients()
	assert.Equal(t, 1, c)
}

func TestRealtimeClientGivesUpAfterServerLoss(t *testing.T) {
	hub, srv := newHub(t)

	client := realtime.New(realtime.Options{Attempts: 2, RetryDelay: 10 * time.Millisecond, DialTimeout: time.Second})
	defer client.Disconnect()
	var log stateLog
	client.OnStateChange(log.add)

	require.NoError(t, client.Connect(context.Background(), srv.URL, "good"))
	require.Equal(t, realtime.StateConnected, client.State())

	// stop accepting before dropping the live connection
	srv.Close()
	hub.Close()

	require.Eventually(t, func() bool {
		return client.State() == realtime.StateDisconnected
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []realtime.State{
		realtime.StateConnecting,
		realtime.StateConnected,
		realtime.StateConnecting,
		realtime.StateDisconnected,
	}, log.get())
	assert.False(t, client.Authenticated())

	// no further attempts once the budget is spent
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, log.get(), 4)
}
