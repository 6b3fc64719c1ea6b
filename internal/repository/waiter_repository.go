package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"

	"github.com/iliyamo/pos-waiter/internal/utils"
)

// Waiter mirrors the 'waiters' table.
type Waiter struct {
	ID      int64
	Name    string
	PINHash string
	Active  bool
}

// WaiterDirectory is where the server looks waiters up.
type WaiterDirectory interface {
	ActiveWaiters(ctx context.Context) ([]Waiter, error)
	// WaiterByID returns ErrNotFound for unknown ids.
	WaiterByID(ctx context.Context, id int64) (Waiter, error)
}

// WaiterRepo reads waiters from MySQL.
type WaiterRepo struct{ DB *sql.DB }

func NewWaiterRepo(db *sql.DB) *WaiterRepo { return &WaiterRepo{DB: db} }

// ActiveWaiters lists waiters on shift ordered by id.
func (r *WaiterRepo) ActiveWaiters(ctx context.Context) ([]Waiter, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,name,pin_hash,is_active FROM waiters WHERE is_active=1 ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Waiter
	for rows.Next() {
		var w Waiter
		if err := rows.Scan(&w.ID, &w.Name, &w.PINHash, &w.Active); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// WaiterByID fetches a waiter by id.
func (r *WaiterRepo) WaiterByID(ctx context.Context, id int64) (Waiter, error) {
	var w Waiter
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,name,pin_hash,is_active FROM waiters WHERE id=? LIMIT 1",
		id).Scan(&w.ID, &w.Name, &w.PINHash, &w.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return Waiter{}, ErrNotFound
	}
	return w, err
}

// MemoryWaiters is the built-in waiter list used when no database is set.
type MemoryWaiters struct {
	mu      sync.RWMutex
	waiters map[int64]Waiter
}

// NewMemoryWaiters hashes pin for every name; ids start at 1 in order.
func NewMemoryWaiters(names []string, pin string, cost int) (*MemoryWaiters, error) {
	m := &MemoryWaiters{waiters: make(map[int64]Waiter, len(names))}
	hash, err := utils.HashSecret(pin, cost)
	if err != nil {
		return nil, err
	}
	for i, n := range names {
		id := int64(i + 1)
		m.waiters[id] = Waiter{ID: id, Name: n, PINHash: hash, Active: true}
	}
	return m, nil
}

// DefaultWaiterNames is the mock crew.
var DefaultWaiterNames = []string{"Ali", "Ayşe", "Mehmet"}

func (m *MemoryWaiters) ActiveWaiters(context.Context) ([]Waiter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Waiter, 0, len(m.waiters))
	for _, w := range m.waiters {
		if w.Active {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryWaiters) WaiterByID(_ context.Context, id int64) (Waiter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.waiters[id]
	if !ok {
		return Waiter{}, ErrNotFound
	}
	return w, nil
}

// SetActive starts or ends a waiter's shift.
func (m *MemoryWaiters) SetActive(id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.waiters[id]
	if !ok {
		return ErrNotFound
	}
	w.Active = active
	m.waiters[id] = w
	return nil
}
