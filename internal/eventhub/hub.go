// Package eventhub pushes POS events to connected waiter clients over
// WebSocket.  A client must send an auth frame carrying a valid access
// token before it receives broadcasts; the hub answers auth_ok or
// auth_error.
package eventhub

import (
	"log"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/iliyamo/pos-waiter/internal/realtime"
)

// sendBuffer is how many frames may queue for a slow client before it is
// dropped.
const sendBuffer = 32

// Verifier checks an access token presented in an auth frame.
type Verifier func(token string) error

type peer struct {
	ws     *websocket.Conn
	send   chan realtime.Frame
	authed bool
	once   sync.Once
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.send)
		_ = p.ws.Close()
	})
}

// Hub tracks connected clients and fans frames out to them.
type Hub struct {
	verify Verifier

	mu     sync.Mutex
	peers  map[*peer]struct{}
	closed bool
}

// New returns a hub that admits clients whose token passes verify.
func New(verify Verifier) *Hub {
	return &Hub{verify: verify, peers: make(map[*peer]struct{})}
}

// Handler serves the WebSocket endpoint.  Any Origin is accepted; waiter
// devices connect from arbitrary LAN addresses.
func (h *Hub) Handler() http.Handler {
	return websocket.Server{
		Handler:   h.serve,
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
	}
}

func (h *Hub) serve(ws *websocket.Conn) {
	p := &peer{ws: ws, send: make(chan realtime.Frame, sendBuffer)}
	if !h.add(p) {
		_ = ws.Close()
		return
	}
	defer h.remove(p)

	go func() {
		for f := range p.send {
			if err := websocket.JSON.Send(ws, f); err != nil {
				_ = ws.Close()
				return
			}
		}
	}()

	for {
		var f realtime.Frame
		if err := websocket.JSON.Receive(ws, &f); err != nil {
			return
		}
		if f.Event == realtime.EventAuth {
			h.authenticate(p, f)
		}
	}
}

func (h *Hub) authenticate(p *peer, f realtime.Frame) {
	var ap realtime.AuthPayload
	var reply realtime.Frame
	if err := (realtime.Event{Data: f.Data}).Decode(&ap); err != nil || ap.Token == "" || h.verify(ap.Token) != nil {
		reply, _ = realtime.NewFrame(realtime.EventAuthError, map[string]string{"error": "invalid token"})
	} else {
		reply = realtime.Frame{Event: realtime.EventAuthOK}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[p]; !ok {
		return
	}
	p.authed = reply.Event == realtime.EventAuthOK
	h.deliver(p, reply)
}

// Broadcast sends event to every authenticated client.  Clients whose
// queue is full are disconnected.
func (h *Hub) Broadcast(event string, data any) error {
	f, err := realtime.NewFrame(event, data)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		if p.authed {
			h.deliver(p, f)
		}
	}
	return nil
}

// deliver queues f for p.  Callers hold h.mu.
func (h *Hub) deliver(p *peer, f realtime.Frame) {
	select {
	case p.send <- f:
	default:
		log.Printf("eventhub: dropping slow client %s", p.ws.Request().RemoteAddr)
		delete(h.peers, p)
		p.close()
	}
}

// Clients returns how many clients are connected and authenticated.
func (h *Hub) Clients() (connected, authed int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		connected++
		if p.authed {
			authed++
		}
	}
	return connected, authed
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for p := range h.peers {
		delete(h.peers, p)
		p.close()
	}
}

func (h *Hub) add(p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.peers[p] = struct{}{}
	return true
}

func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[p]; ok {
		delete(h.peers, p)
	}
	p.close()
}
