package posapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/pos-waiter/internal/logging"
	"github.com/iliyamo/pos-waiter/internal/model"
	"github.com/iliyamo/pos-waiter/internal/posmock"
	"github.com/iliyamo/pos-waiter/internal/transport"
)

func newAPI(t *testing.T, baseURL, token string) *API {
	t.Helper()
	target := transport.NewTarget(2 * time.Second)
	target.SetBaseURL(baseURL)
	target.SetToken(token)
	return New(transport.New(target, logging.Discard()))
}

func mockAPI(t *testing.T) (*API, *posmock.Server) {
	t.Helper()
	mock, err := posmock.New(posmock.TestConfig())
	require.NoError(t, err)
	srv := httptest.NewServer(mock.Echo)
	t.Cleanup(srv.Close)
	tok, err := mock.Token(1, "Ali")
	require.NoError(t, err)
	return newAPI(t, srv.URL, tok), mock
}

func TestLoginSurface(t *testing.T) {
	api, _ := mockAPI(t)
	ctx := context.Background()

	assert.True(t, api.Health(ctx))

	hs, err := api.Handshake(ctx)
	require.NoError(t, err)
	assert.True(t, hs.Valid)
	assert.NotEmpty(t, hs.InstanceID)

	on, err := api.MobileFeature(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	ok, err := api.VerifyOwner(ctx, "owner")
	require.NoError(t, err)
	assert.True(t, ok)

	ws, err := api.ActiveWaiters(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Waiter{{ID: 1, Name: "Ali"}, {ID: 2, Name: "Ayşe"}, {ID: 3, Name: "Mehmet"}}, ws)

	sess, err := api.WaiterLogin(ctx, 3, "1234")
	require.NoError(t, err)
	assert.Equal(t, "Mehmet", sess.WaiterName)
	assert.NotEmpty(t, sess.AccessToken)
	assert.False(t, sess.LastCheckin.IsZero())

	active, err := api.WaiterActive(ctx, 1)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestBackOffice(t *testing.T) {
	api, mock := mockAPI(t)
	ctx := context.Background()

	err := api.SetMobileFeature(ctx, "guess", false)
	assert.True(t, transport.IsStatus(err, http.StatusForbidden))
	require.NoError(t, api.SetMobileFeature(ctx, "owner", false))
	assert.False(t, mock.Store.MobileEnabled())

	off := false
	price := model.Money(37500)
	it, err := api.UpdateMenuItem(ctx, "owner", 3, MenuItemPatch{Available: &off, Price: &price})
	require.NoError(t, err)
	assert.False(t, it.Available)
	assert.Equal(t, price, it.Price)
	assert.Equal(t, "Adana Kebap", it.Name)

	menu, err := api.Menu(ctx)
	require.NoError(t, err)
	got, ok := menu.Item(3)
	require.True(t, ok)
	assert.Equal(t, price, got.Price)
}

func TestOrderSurface(t *testing.T) {
	api, _ := mockAPI(t)
	ctx := context.Background()

	tables, err := api.Tables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 8)
	assert.Equal(t, "T1", tables[0].Number)
	assert.Equal(t, model.TableAvailable, tables[0].Status)

	open, err := api.OpenOrder(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, open)

	tid := int64(1)
	o, err := api.CreateOrder(ctx, CreateOrderInput{TableID: &tid, OrderType: "dine-in",
		Items: ItemsFromDraft([]model.DraftItem{{MenuItemID: 1, Quantity: 2, Notes: "hot"}})})
	require.NoError(t, err)
	assert.Equal(t, model.Money(18000), o.Total)
	require.NotNil(t, o.TableID)
	assert.Equal(t, "T1", o.TableNumber)
	assert.Equal(t, "hot", o.Items[0].Notes)
	assert.False(t, o.CreatedAt.IsZero())

	o, err = api.AddItems(ctx, o.ID, []ItemInput{{MenuItemID: 6, Quantity: 1}})
	require.NoError(t, err)
	assert.Len(t, o.Items, 2)

	_, err = api.UpdateStatus(ctx, o.ID, model.StatusServed, 1)
	require.Error(t, err)
	assert.True(t, transport.IsStatus(err, http.StatusConflict))
	var te *transport.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "VERSION_CONFLICT", te.Code)

	o, err = api.UpdateStatus(ctx, o.ID, model.StatusServed, o.Version)
	require.NoError(t, err)
	assert.Equal(t, model.StatusServed, o.Status)

	again, err := api.Order(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Version, again.Version)

	list, err := api.ActiveOrders(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, model.FilterVisible(list))

	_, err = api.Order(ctx, 999)
	assert.True(t, transport.IsStatus(err, http.StatusNotFound))
}

func TestEnvelopeAndMalformed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/features/mobile", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"mobileEnabled":true}}`))
	})
	mux.HandleFunc("/waiter/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accessToken":"abc"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	api := newAPI(t, srv.URL, "")
	ctx := context.Background()

	on, err := api.MobileFeature(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	_, err = api.WaiterLogin(ctx, 1, "1234")
	var te *transport.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, transport.KindMalformed, te.Kind)
}

func TestUnboundClient(t *testing.T) {
	api := newAPI(t, "", "")
	assert.False(t, api.Health(context.Background()))
	_, err := api.Handshake(context.Background())
	assert.True(t, transport.IsNoAddress(err))
}
