package model

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is the port POS servers listen on.
const DefaultPort = 4000

// ConnectionState is the client's view of a server binding.
type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Checking     ConnectionState = "checking"
	Connected    ConnectionState = "connected"
)

// ServerBinding identifies a POS server found by discovery or typed in
// manually.  At most one binding is active at a time and only the session
// layer changes it.
type ServerBinding struct {
	IP    string
	Port  int
	Name  string
	State ConnectionState
}

// NewBinding builds a disconnected binding with the default display name.
func NewBinding(ip string, port int) ServerBinding {
	return ServerBinding{
		IP:    ip,
		Port:  port,
		Name:  fmt.Sprintf("POS System (%s)", ip),
		State: Disconnected,
	}
}

// Address returns host:port.
func (b ServerBinding) Address() string {
	return net.JoinHostPort(b.IP, strconv.Itoa(b.Port))
}

// BaseURL returns the http base URL the transport uses.
func (b ServerBinding) BaseURL() string { return "http://" + b.Address() }

// ParseIPv4 accepts only dotted-quad IPv4 literals ("192.168.1.20").  Hostnames,
// IPv6 and shortened forms are rejected.
func ParseIPv4(s string) (string, bool) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return "", false
	}
	for _, p := range parts {
		if p == "" || len(p) > 3 {
			return "", false
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 || p[0] == '+' || p[0] == '-' {
			return "", false
		}
		if len(p) > 1 && p[0] == '0' {
			return "", false
		}
	}
	return s, true
}

// ValidPort reports whether p is a usable TCP port.
func ValidPort(p int) bool { return p >= 1 && p <= 65535 }

// Waiter is an entry of the active waiter list.
type Waiter struct {
	ID   int64
	Name string
}

// WaiterSession is the proof that a waiter logged in with a PIN.  The
// access token is the only credential later requests carry.
type WaiterSession struct {
	WaiterID    int64     `json:"waiterId"`
	WaiterName  string    `json:"waiterName"`
	AccessToken string    `json:"accessToken"`
	LastCheckin time.Time `json:"lastCheckin,omitempty"`
}
