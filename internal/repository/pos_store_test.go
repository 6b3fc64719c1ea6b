package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/pos-waiter/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestSeededStore(t *testing.T) {
	s := NewPOSStore(true)
	assert.True(t, s.MobileEnabled())
	s.SetMobileEnabled(false)
	assert.False(t, s.MobileEnabled())

	cats, items := s.Menu()
	assert.NotEmpty(t, cats)
	assert.Len(t, items, 7)
	assert.Len(t, s.Tables(), 8)
	assert.Empty(t, s.ActiveOrders())
}

func TestCreateOrder(t *testing.T) {
	s := NewPOSStore(true)

	o, err := s.CreateOrder(ptr(int64(2)), model.OrderDineIn, []LineInput{{MenuItemID: 3, Quantity: 2}, {MenuItemID: 5, Quantity: 1, Notes: "cold"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), o.Version)
	assert.Equal(t, model.StatusPending, o.Status)
	assert.Equal(t, model.Money(67500), o.Total)
	assert.Equal(t, "T2", o.TableNumber)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "cold", o.Items[1].Notes)
	assert.NotEqual(t, o.Items[0].ID, o.Items[1].ID)
	assert.Equal(t, model.TableOccupied, s.Tables()[1].Status)

	tk, err := s.CreateOrder(nil, model.OrderTakeaway, []LineInput{{MenuItemID: 1, Quantity: 1}})
	require.NoError(t, err)
	assert.Nil(t, tk.TableID)
	assert.Greater(t, tk.ID, o.ID)
}

func TestCreateOrderRejects(t *testing.T) {
	s := NewPOSStore(true)
	line := []LineInput{{MenuItemID: 1, Quantity: 1}}

	_, err := s.CreateOrder(nil, model.OrderDineIn, line)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = s.CreateOrder(ptr(int64(42)), model.OrderDineIn, line)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.CreateOrder(nil, model.OrderType("boat"), line)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = s.CreateOrder(nil, model.OrderTakeaway, nil)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = s.CreateOrder(nil, model.OrderTakeaway, []LineInput{{MenuItemID: 1, Quantity: -1}})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = s.UpdateMenuItem(1, ptr(false), nil)
	require.NoError(t, err)
	_, err = s.CreateOrder(nil, model.OrderTakeaway, line)
	assert.ErrorIs(t, err, ErrInvalid)

	assert.Empty(t, s.ActiveOrders())
	assert.Equal(t, model.TableAvailable, s.Tables()[0].Status)
}

func TestAddItemsBumpsVersion(t *testing.T) {
	s := NewPOSStore(true)
	o, err := s.CreateOrder(ptr(int64(1)), model.OrderDineIn, []LineInput{{MenuItemID: 1, Quantity: 1}})
	require.NoError(t, err)

	o, err = s.AddItems(o.ID, []LineInput{{MenuItemID: 7, Quantity: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), o.Version)
	assert.Len(t, o.Items, 2)
	assert.Equal(t, model.Money(9000+2*15000), o.Total)

	_, err = s.AddItems(999, []LineInput{{MenuItemID: 1, Quantity: 1}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatusVersioning(t *testing.T) {
	s := NewPOSStore(true)
	o, err := s.CreateOrder(ptr(int64(4)), model.OrderDineIn, []LineInput{{MenuItemID: 2, Quantity: 1}})
	require.NoError(t, err)

	_, err = s.UpdateStatus(o.ID, model.StatusReady, 7)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = s.UpdateStatus(o.ID, model.OrderStatus("gone"), 1)
	assert.ErrorIs(t, err, ErrInvalid)

	o, err = s.UpdateStatus(o.ID, model.StatusReady, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), o.Version)

	// version 0 skips the check
	o, err = s.UpdateStatus(o.ID, model.StatusPaid, 0)
	require.NoError(t, err)
	assert.Equal(t, "paid", o.PaymentStatus)
	assert.Equal(t, model.TableCleaning, s.Tables()[3].Status)
	assert.Nil(t, s.OpenOrder(4))

	_, err = s.AddItems(o.ID, []LineInput{{MenuItemID: 1, Quantity: 1}})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestOpenOrderIsNewestUnpaid(t *testing.T) {
	s := NewPOSStore(true)
	line := []LineInput{{MenuItemID: 1, Quantity: 1}}
	first, err := s.CreateOrder(ptr(int64(5)), model.OrderDineIn, line)
	require.NoError(t, err)
	second, err := s.CreateOrder(ptr(int64(5)), model.OrderDineIn, line)
	require.NoError(t, err)

	open := s.OpenOrder(5)
	require.NotNil(t, open)
	assert.Equal(t, second.ID, open.ID)

	_, err = s.UpdateStatus(second.ID, model.StatusPaid, 0)
	require.NoError(t, err)
	open = s.OpenOrder(5)
	require.NotNil(t, open)
	assert.Equal(t, first.ID, open.ID)

	active := s.ActiveOrders()
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)
}

func TestStoreReturnsCopies(t *testing.T) {
	s := NewPOSStore(true)
	o, err := s.CreateOrder(ptr(int64(1)), model.OrderDineIn, []LineInput{{MenuItemID: 1, Quantity: 1}})
	require.NoError(t, err)
	o.Items[0].Quantity = 99

	got, err := s.Order(o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Items[0].Quantity)

	_, err = s.Order(404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMenuAndTableUpdates(t *testing.T) {
	s := NewPOSStore(true)
	price := model.Money(12345)
	it, err := s.UpdateMenuItem(2, nil, &price)
	require.NoError(t, err)
	assert.Equal(t, price, it.Price)
	assert.True(t, it.Available)

	neg := model.Money(-1)
	_, err = s.UpdateMenuItem(2, nil, &neg)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = s.UpdateMenuItem(99, ptr(true), nil)
	assert.ErrorIs(t, err, ErrNotFound)

	tb, err := s.SetTableStatus(3, model.TableReserved)
	require.NoError(t, err)
	assert.Equal(t, model.TableReserved, tb.Status)
	_, err = s.SetTableStatus(3, model.TableStatus("flooded"))
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = s.SetTableStatus(30, model.TableCleaning)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryWaiters(t *testing.T) {
	ctx := context.Background()
	m, err := NewMemoryWaiters(DefaultWaiterNames, "1234", bcrypt.MinCost)
	require.NoError(t, err)

	ws, err := m.ActiveWaiters(ctx)
	require.NoError(t, err)
	require.Len(t, ws, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{ws[0].ID, ws[1].ID, ws[2].ID})

	require.NoError(t, m.SetActive(2, false))
	ws, err = m.ActiveWaiters(ctx)
	require.NoError(t, err)
	assert.Len(t, ws, 2)

	w, err := m.WaiterByID(ctx, 2)
	require.NoError(t, err)
	assert.False(t, w.Active)
	assert.NotEqual(t, "1234", w.PINHash)

	_, err = m.WaiterByID(ctx, 9)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.SetActive(9, true), ErrNotFound)
}
