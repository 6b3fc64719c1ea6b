package app

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/pos-waiter/internal/config"
	"github.com/iliyamo/pos-waiter/internal/logging"
	"github.com/iliyamo/pos-waiter/internal/model"
	"github.com/iliyamo/pos-waiter/internal/posapi"
	"github.com/iliyamo/pos-waiter/internal/posmock"
	"github.com/iliyamo/pos-waiter/internal/realtime"
	"github.com/iliyamo/pos-waiter/internal/session"
	"github.com/iliyamo/pos-waiter/internal/store"
	"github.com/iliyamo/pos-waiter/internal/transport"
)

func testConfig() config.ClientConfig {
	return config.ClientConfig{
		Port:           model.DefaultPort,
		RequestTimeout: 2 * time.Second,
		HealthTimeout:  time.Second,
		ScanBatch:      5,
		StateBackend:   "file",
		WSAttempts:     1,
		WSDialTimeout:  time.Second,
	}
}

func TestNewStateBackends(t *testing.T) {
	cfg := testConfig()
	cfg.StateDir = t.TempDir()
	a, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	_, ok := a.Store.(*store.FileStore)
	assert.True(t, ok)
	require.NoError(t, a.Close())

	cfg.StateBackend = "floppy"
	_, err = New(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)
}

func TestBuildSharesOneTarget(t *testing.T) {
	a := Build(testConfig(), store.NewMemory(), nil)
	defer a.Close()

	assert.Same(t, a.Target, a.Client.Target())
	assert.Same(t, a.Client, a.API.Client())
	assert.Equal(t, session.AddressEntry, a.Session.State())
	assert.Equal(t, realtime.StateDisconnected, a.Events.State())
	assert.Error(t, a.ConnectEvents(context.Background()))
}

// TestWaiterDay logs a waiter in against the mock, opens an order and
// watches a back-office status change arrive over the event channel.
func TestWaiterDay(t *testing.T) {
	mock, err := posmock.New(posmock.TestConfig())
	require.NoError(t, err)
	srv := httptest.NewServer(mock.Echo)
	defer srv.Close()
	defer mock.Hub.Close()

	a := Build(testConfig(), store.NewMemory(), nil)
	defer a.Close()
	ctx := context.Background()

	require.NoError(t, a.Session.SubmitAddress(ctx, srv.Listener.Addr().String()))
	require.NoError(t, a.Session.Handshake(ctx))
	require.NoError(t, a.Session.CheckFeature(ctx))
	require.NoError(t, a.Session.VerifyOwner(ctx, "owner"))
	require.NoError(t, a.Session.SelectWaiter(2))
	require.NoError(t, a.Session.SubmitPin(ctx, "1234"))

	require.Eventually(t, a.Events.Authenticated, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, a.LoadCatalog(ctx))
	assert.Len(t, a.Catalog.Tables(), 8)
	assert.NotEmpty(t, a.Catalog.Menu().Items)

	require.NoError(t, a.Orders.AddDraftItem(model.DraftItem{MenuItemID: 4, Name: "Karnıyarık", Quantity: 1, UnitPrice: 24000}))
	o, err := a.Orders.CreateOrder(ctx, 6, model.OrderDineIn)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return a.Catalog.Tables()[5].Status == model.TableOccupied
	}, 3*time.Second, 10*time.Millisecond)

	// the kitchen marks it ready from another terminal
	tok, err := mock.Token(3, "Mehmet")
	require.NoError(t, err)
	kt := transport.NewTarget(2 * time.Second)
	kt.SetBaseURL(srv.URL)
	kt.SetToken(tok)
	kitchen := posapi.New(transport.New(kt, logging.Discard()))
	_, err = kitchen.UpdateStatus(ctx, o.ID, model.StatusReady, o.Version)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cur := a.Orders.Current()
		return cur != nil && cur.Status == model.StatusReady && cur.Version == o.Version+1
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Session.Logout(ctx))
	assert.Equal(t, realtime.StateDisconnected, a.Events.State())
	assert.Nil(t, a.Orders.Current())
	assert.Empty(t, a.Target.Token())
}
