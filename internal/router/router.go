// Package router wires the mock POS server's routes, middleware and the
// WebSocket endpoint onto an Echo instance.
package router

import (
	"context"
	"log"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/pos-waiter/internal/config"
	"github.com/iliyamo/pos-waiter/internal/eventhub"
	"github.com/iliyamo/pos-waiter/internal/handler"
	"github.com/iliyamo/pos-waiter/internal/middleware"
)

// Deps is everything the routes need.  Redis and Hub are optional: without
// Redis the rate limiter and menu cache pass through, without a hub /ws is
// not mounted.
type Deps struct {
	Cfg       config.ServerConfig
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Redis     redis.UniversalClient
	Auth      *handler.AuthHandler
	POS       *handler.POSHandler
	Hub       *eventhub.Hub
}

// New returns an Echo instance serving the POS API.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	if d.Cfg.Env != "test" {
		e.Use(echomw.Logger())
	}

	RegisterPublic(e, d)
	RegisterWaiter(e, d)
	RegisterOwner(e, d)
	if d.Hub != nil {
		e.GET("/ws", echo.WrapHandler(d.Hub.Handler()))
	}
	return e
}

// RegisterPublic mounts the routes a client uses before it has a waiter
// token: discovery, handshake, feature flag and the login chain.  The
// password and PIN endpoints sit behind the token bucket.
func RegisterPublic(e *echo.Echo, d Deps) {
	limiter := middleware.NewTokenBucket(d.RateLimit, scripter(d.Redis))

	e.GET("/health", handler.Health)
	e.POST("/handshake", d.Auth.Handshake)
	e.GET("/handshake", d.Auth.Handshake)
	e.GET("/features/mobile", d.POS.MobileFeature)
	e.POST("/owner/verify", d.Auth.VerifyOwner, limiter)
	e.GET("/waiters/active", d.Auth.ActiveWaiters)
	e.POST("/waiter/login", d.Auth.WaiterLogin, limiter)
}

// RegisterWaiter mounts the routes that need a waiter access token.
func RegisterWaiter(e *echo.Echo, d Deps) {
	// Route-level middleware keeps unknown paths at 404.
	auth := middleware.WaiterAuth(d.Cfg.JWTSecret)

	e.GET("/waiter/status", d.Auth.WaiterStatus, auth)
	e.GET("/menu", d.POS.Menu, auth, middleware.NewRedisCache(d.Cache, cmdable(d.Redis)))
	e.GET("/tables", d.POS.Tables, auth)
	e.GET("/orders/open", d.POS.OpenOrder, auth)
	e.GET("/orders/active", d.POS.ActiveOrders, auth)
	e.POST("/orders", d.POS.CreateOrder, auth)
	e.GET("/orders/:id", d.POS.Order, auth)
	e.POST("/orders/:id/items", d.POS.AddItems, auth)
	e.PATCH("/orders/:id/status", d.POS.UpdateStatus, auth)
}

// RegisterOwner mounts the back-office routes guarded by the owner
// password header.
func RegisterOwner(e *echo.Echo, d Deps) {
	owner := middleware.RequireOwner(d.Cfg.OwnerPassword)

	e.PUT("/features/mobile", d.POS.SetMobileFeature, owner)
	e.PATCH("/menu/items/:id", d.POS.UpdateMenuItem, owner)
	e.PATCH("/tables/:id/status", d.POS.SetTableStatus, owner)

	if d.POS.MenuChanged == nil {
		d.POS.MenuChanged = func(ctx context.Context) {
			if err := middleware.InvalidateCache(ctx, d.Cache, cmdable(d.Redis)); err != nil {
				log.Printf("router: menu cache invalidation failed: %v", err)
			}
		}
	}
}

// scripter and cmdable keep a nil client a nil interface.
func scripter(r redis.UniversalClient) redis.Scripter {
	if r == nil {
		return nil
	}
	return r
}

func cmdable(r redis.UniversalClient) redis.Cmdable {
	if r == nil {
		return nil
	}
	return r
}
