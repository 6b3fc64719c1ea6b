package realtime

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoint(t *testing.T) {
	c := New(Options{})
	cases := []struct{ base, ws, origin string }{
		{"http://192.168.1.20:3000", "ws://192.168.1.20:3000/ws", "http://192.168.1.20:3000"},
		{"http://192.168.1.20:3000/", "ws://192.168.1.20:3000/ws", "http://192.168.1.20:3000"},
		{"https://pos.example.com", "wss://pos.example.com/ws", "https://pos.example.com"},
	}
	for _, tc := range cases {
		ws, origin, err := c.endpoint(tc.base)
		require.NoError(t, err, tc.base)
		assert.Equal(t, tc.ws, ws)
		assert.Equal(t, tc.origin, origin)
	}

	_, _, err := c.endpoint("not a url")
	assert.Error(t, err)
}

func TestOrderID(t *testing.T) {
	mk := func(name string, data any) Event {
		f, err := NewFrame(name, data)
		require.NoError(t, err)
		return Event{Name: f.Event, Data: f.Data}
	}

	id, ok := OrderID(mk(EventOrderUpdate, OrderUpdate{ID: 4, Status: "ready"}))
	assert.True(t, ok)
	assert.Equal(t, int64(4), id)

	id, ok = OrderID(mk(EventOrderItemAdd, OrderItemAdd{OrderID: 5}))
	assert.True(t, ok)
	assert.Equal(t, int64(5), id)

	id, ok = OrderID(mk(EventOrderPaid, OrderPaid{OrderID: 6}))
	assert.True(t, ok)
	assert.Equal(t, int64(6), id)

	_, ok = OrderID(mk(EventTableUpdate, TableUpdate{ID: 1}))
	assert.False(t, ok)

	_, ok = OrderID(Event{Name: EventOrderUpdate, Data: []byte(`"oops"`)})
	assert.False(t, ok)
}

func TestNewFrameWithoutData(t *testing.T) {
	f, err := NewFrame(EventAuthOK, nil)
	require.NoError(t, err)
	assert.Equal(t, Frame{Event: EventAuthOK}, f)
}

func TestDispatchIsolatesPanics(t *testing.T) {
	c := New(Options{})
	var got []string
	c.On(EventTableUpdate, func(Event) { got = append(got, "first") })
	c.On(EventTableUpdate, func(Event) { panic("boom") })
	c.On(EventTableUpdate, func(Event) { got = append(got, "third") })
	c.On(EventOrderPaid, func(Event) { got = append(got, "other") })

	c.dispatch(Event{Name: EventTableUpdate})
	assert.Equal(t, []string{"first", "third"}, got)
}

func TestConnectFailsAfterAttempts(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	var states []State
	c := New(Options{Attempts: 2, RetryDelay: time.Millisecond, DialTimeout: 200 * time.Millisecond})
	c.OnStateChange(func(s State) { states = append(states, s) })

	err = c.Connect(context.Background(), "http://"+addr, "tok")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectFailed))
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, []State{StateConnecting, StateDisconnected}, states)
}

func TestEmitWithoutConnection(t *testing.T) {
	assert.ErrorIs(t, New(Options{}).Emit("ping", nil), ErrNotConnected)
}

func TestDisconnectWhenIdle(t *testing.T) {
	c := New(Options{})
	called := false
	c.OnStateChange(func(State) { called = true })
	c.Disconnect()
	assert.False(t, called)
	assert.Equal(t, "disconnected", c.State().String())
}
