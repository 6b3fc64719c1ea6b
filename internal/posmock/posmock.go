// Package posmock assembles a self-contained mock POS server: in-memory
// waiters and store, the event hub and the full route table, without
// Redis, MySQL or RabbitMQ.  Package tests run the waiter client against
// it through httptest.
package posmock

import (
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/pos-waiter/internal/config"
	"github.com/iliyamo/pos-waiter/internal/eventhub"
	"github.com/iliyamo/pos-waiter/internal/handler"
	"github.com/iliyamo/pos-waiter/internal/repository"
	"github.com/iliyamo/pos-waiter/internal/router"
	"github.com/iliyamo/pos-waiter/internal/service"
	"github.com/iliyamo/pos-waiter/internal/utils"
)

// Server is the assembled mock.  Tests reach into Store and Waiters to set
// up or inspect state.
type Server struct {
	Echo    *echo.Echo
	Hub     *eventhub.Hub
	Store   *repository.POSStore
	Waiters *repository.MemoryWaiters
	Cfg     config.ServerConfig
}

// TestConfig returns a configuration matching the original mock data:
// owner password "owner", PIN "1234", cheap bcrypt.
func TestConfig() config.ServerConfig {
	return config.ServerConfig{
		Env:           "test",
		Port:          "0",
		JWTSecret:     "posmock-test-secret",
		AccessTTL:     time.Hour,
		BcryptCost:    bcrypt.MinCost,
		OwnerPassword: "owner",
		MobileEnabled: true,
		WaiterPIN:     "1234",
	}
}

// New builds the mock from cfg.
func New(cfg config.ServerConfig) (*Server, error) {
	waiters, err := repository.NewMemoryWaiters(repository.DefaultWaiterNames, cfg.WaiterPIN, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	instanceID, err := utils.NewInstanceID()
	if err != nil {
		return nil, err
	}
	auth, err := handler.NewAuthHandler(cfg, waiters, instanceID)
	if err != nil {
		return nil, err
	}
	hub := eventhub.New(func(tok string) error {
		_, err := utils.ParseAccessToken(cfg.JWTSecret, tok)
		return err
	})
	store := repository.NewPOSStore(cfg.MobileEnabled)
	e := router.New(router.Deps{
		Cfg:  cfg,
		Auth: auth,
		POS:  handler.NewPOSHandler(store, service.HubPublisher{Hub: hub}),
		Hub:  hub,
	})
	return &Server{Echo: e, Hub: hub, Store: store, Waiters: waiters, Cfg: cfg}, nil
}

// Token issues an access token for a waiter without going through login.
func (s *Server) Token(waiterID int64, name string) (string, error) {
	at, err := utils.NewAccessToken(s.Cfg.JWTSecret, waiterID, name, s.Cfg.AccessTTL)
	return at.Token, err
}
