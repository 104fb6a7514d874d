package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ordersync/config"
	"ordersync/internal/api"
	"ordersync/internal/lifecycle"
	"ordersync/internal/remote"
	"ordersync/internal/store"
	syncx "ordersync/internal/sync"
	"ordersync/internal/util"
	"ordersync/internal/warehouse"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting sync agent")

	tp, err := util.InitTracer("ordersync-agent", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open local store: %v", err)
	}
	defer db.Close()
	log.Println("Local store opened")

	manager := warehouse.NewManager(db)
	orders := lifecycle.NewService(db, manager, nil, cfg.Device.ID)
	client := remote.NewClient(cfg.Remote.BaseURL, remote.StaticToken(cfg.Remote.Token), cfg.Remote.Timeout)
	engine := syncx.NewEngine(db, orders, client)
	scheduler := syncx.NewScheduler(engine, cfg.Sync.Interval, cfg.Sync.FastInterval)

	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	go scheduler.Run(schedCtx)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(scheduler)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting admin server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down agent...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	schedCancel()
	log.Println("Agent exited")
}
