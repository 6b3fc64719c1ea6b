// Command posmock runs a stand-in POS server for waiter client development:
// discovery, the login chain, menu, tables, orders and the /ws event
// channel.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/pos-waiter/internal/config"
	"github.com/iliyamo/pos-waiter/internal/database"
	"github.com/iliyamo/pos-waiter/internal/eventhub"
	"github.com/iliyamo/pos-waiter/internal/handler"
	"github.com/iliyamo/pos-waiter/internal/queue"
	"github.com/iliyamo/pos-waiter/internal/repository"
	"github.com/iliyamo/pos-waiter/internal/router"
	"github.com/iliyamo/pos-waiter/internal/service"
	"github.com/iliyamo/pos-waiter/internal/utils"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadServer()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	waiters, closeDB := waiterDirectory(ctx, cfg)
	defer closeDB()

	instanceID, err := utils.NewInstanceID()
	if err != nil {
		log.Fatalf("instance id: %v", err)
	}
	auth, err := handler.NewAuthHandler(cfg, waiters, instanceID)
	if err != nil {
		log.Fatalf("auth handler: %v", err)
	}

	hub := eventhub.New(func(tok string) error {
		_, err := utils.ParseAccessToken(cfg.JWTSecret, tok)
		return err
	})
	defer hub.Close()

	// With a broker every process publishes to the exchange and relays what
	// it consumes to its own hub; without one events go straight to the hub.
	var pub service.Publisher = service.HubPublisher{Hub: hub}
	if cfg.RabbitURL != "" {
		ap := service.NewAMQPPublisher(cfg.RabbitURL)
		defer ap.Close()
		pub = ap
		go func() {
			err := queue.StartEventConsumer(ctx, cfg.RabbitURL, func(ev queue.POSEvent) error {
				return hub.Broadcast(ev.Event, ev.Data)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("event consumer stopped: %v", err)
			}
		}()
	}

	var rdb redis.UniversalClient
	if client, err := config.NewRedisClient(ctx, cfg.Redis); err != nil {
		log.Printf("redis unavailable, rate limiting and menu cache disabled: %v", err)
	} else {
		defer client.Close()
		rdb = client
	}

	e := router.New(router.Deps{
		Cfg:       cfg,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Redis:     rdb,
		Auth:      auth,
		POS:       handler.NewPOSHandler(repository.NewPOSStore(cfg.MobileEnabled), pub),
		Hub:       hub,
	})

	addr := ":" + cfg.Port
	log.Printf("posmock listening on %s (env=%s, instance=%s)", addr, cfg.Env, instanceID)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

// waiterDirectory picks MySQL when DB_HOST and DB_NAME are set and the
// built-in crew otherwise.
func waiterDirectory(ctx context.Context, cfg config.ServerConfig) (repository.WaiterDirectory, func()) {
	if cfg.DBEnabled() {
		db, err := database.Open(cfg)
		if err != nil {
			log.Fatalf("mysql: %v", err)
		}
		hash, err := utils.HashSecret(cfg.WaiterPIN, cfg.BcryptCost)
		if err != nil {
			log.Fatalf("hash pin: %v", err)
		}
		if err := database.Migrate(ctx, db, repository.DefaultWaiterNames, hash); err != nil {
			log.Fatalf("mysql migrate: %v", err)
		}
		return repository.NewWaiterRepo(db), func() { _ = db.Close() }
	}
	mem, err := repository.NewMemoryWaiters(repository.DefaultWaiterNames, cfg.WaiterPIN, cfg.BcryptCost)
	if err != nil {
		log.Fatalf("waiters: %v", err)
	}
	return mem, func() {}
}
