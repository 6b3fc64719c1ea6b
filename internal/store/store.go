// Package store persists the client's local state: the bound server address,
// the bearer token, the waiter session, the theme preference and the
// handshake token.  Each key is stored and cleared independently.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// Keys of the persisted values.
const (
	KeyServerAddress  = "server.address"
	KeyAuthToken      = "auth.token"
	KeyWaiterSession  = "waiter.session"
	KeyTheme          = "ui.theme"
	KeyHandshakeToken = "handshake.token"
)

// ErrInvalidKey is returned for keys that can't be mapped onto the backend.
var ErrInvalidKey = errors.New("store: invalid key")

// Store is a JSON key/value persistence backend.
type Store interface {
	// Get decodes the value of key into v.  found is false when the key has
	// never been set or was deleted.
	Get(ctx context.Context, key string, v any) (found bool, err error)
	Set(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	vals map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory { return &Memory{vals: map[string][]byte{}} }

func (m *Memory) Get(_ context.Context, key string, v any) (bool, error) {
	m.mu.RLock()
	b, ok := m.vals[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, v)
}

func (m *Memory) Set(_ context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.vals[key] = b
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.vals, key)
	m.mu.Unlock()
	return nil
}
