package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/Resized/todo-list/api"
	"github.com/Resized/todo-list/broadcast"
	"github.com/Resized/todo-list/domain"
	"github.com/Resized/todo-list/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()
	logger.SetLevel(log.GetLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store domain.TaskStore
	if cfg.StorageConnStr != "" {
		tables, err := storage.New(cfg.StorageConnStr, cfg.TasksTable)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		store = tables
		log.WithField("table", cfg.TasksTable).Info("using table storage")
	} else {
		store = storage.NewMemory()
		log.Info("using in-memory storage")
	}

	var journal *storage.Journal
	if cfg.ChangeQueue != "" {
		q, err := storage.NewQueueClient(cfg.StorageConnStr, cfg.ChangeQueue)
		if err != nil {
			log.Fatalf("change queue: %v", err)
		}
		journal = storage.NewJournal(store, q, cfg.JournalWorkers, cfg.JournalBuffer, logger)
		store = journal
	}

	reg := broadcast.NewRegistry()
	local := broadcast.NewBroadcaster(reg, logger)
	var notifier domain.Notifier = local

	var rc *redis.Client
	if cfg.RedisConnStr != "" {
		rc = redis.NewClient(redisOptions(cfg.RedisConnStr))
		store = storage.NewCache(store, rc, cfg.CacheTTL)
		relay := broadcast.NewRelay(local, rc, cfg.RelayChannel, logger)
		go relay.Run(ctx)
		notifier = relay
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, api.HeaderClientID},
	}))

	api.Register(e, domain.NewTaskService(store, notifier, logger), reg, cfg.Stream, logger)

	go func() {
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	// open streams never finish on their own
	reg.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if journal != nil {
		journal.Close()
	}
	if rc != nil {
		_ = rc.Close()
	}
}
