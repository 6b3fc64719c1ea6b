package session

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/iliyamo/pos-waiter/internal/model"
	"github.com/iliyamo/pos-waiter/internal/transport"
)

// State is a step of the login flow.  The flow only moves forward one step
// at a time; the exits back are Logout, Disconnect, BackToWaiters and a
// failed handshake.
type State int

const (
	AddressEntry State = iota
	Handshake
	FeatureCheck
	OwnerVerify
	WaiterSelect
	WaiterPin
	Authenticated
)

var stateNames = [...]string{"address-entry", "handshake", "feature-check", "owner-verify", "waiter-select", "waiter-pin", "authenticated"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
	return stateNames[s]
}

var (
	ErrInvalidTransition = errors.New("session: invalid transition")
	ErrBusy              = errors.New("session: another step is in progress")
	ErrStale             = errors.New("session: flow changed while the request was in flight")

	ErrInvalidAddress    = errors.New("session: invalid server address")
	ErrServerUnreachable = errors.New("session: server did not answer the health check")
	ErrHandshakeRejected = errors.New("session: server rejected the handshake")
	ErrFeatureDisabled   = errors.New("session: mobile ordering is disabled on this server")
	ErrEmptyPassword     = errors.New("session: owner password is required")
	ErrOwnerRejected     = errors.New("session: invalid owner password")
	ErrUnknownWaiter     = errors.New("session: waiter is not in the active list")
	ErrEmptyPIN          = errors.New("session: PIN is required")
	ErrSessionInactive   = errors.New("session: waiter shift is no longer active")
)

// Snapshot is a read-only view of the machine for display.
type Snapshot struct {
	State         State
	Binding       *model.ServerBinding
	InstanceID    string
	Blocked       bool
	OwnerVerified bool
	Waiters       []model.Waiter
	Selected      *model.Waiter
	Session       *model.WaiterSession
	Error         string // error text of the current state
}

// ParseAddress accepts "ip", "ip:port", "host:port" or an http URL and
// returns the binding it names.  A missing port becomes defPort.
func ParseAddress(s string, defPort int) (model.ServerBinding, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.ServerBinding{}, ErrInvalidAddress
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return model.ServerBinding{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	port := defPort
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || !model.ValidPort(n) {
			return model.ServerBinding{}, fmt.Errorf("%w: port %q", ErrInvalidAddress, p)
		}
		port = n
	}
	return model.NewBinding(u.Hostname(), port), nil
}

// message picks the text to show for err: the server's message for
// transport errors, the error string otherwise.
func message(err error) string {
	var te *transport.Error
	if errors.As(err, &te) {
		return te.Message
	}
	return err.Error()
}
