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

	"catalog-sync/config"
	"catalog-sync/internal/api"
	"catalog-sync/internal/broker"
	"catalog-sync/internal/client"
	"catalog-sync/internal/models"
	"catalog-sync/internal/ratelimit"
	"catalog-sync/internal/redisclient"
	"catalog-sync/internal/scheduler"
	"catalog-sync/internal/service"
	"catalog-sync/internal/store"
	"catalog-sync/internal/util"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting catalog sync service")

	tp, err := util.InitTracer("catalog-sync", cfg.Observ.JaegerEndpoint)
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

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	var events broker.Publisher = broker.NopPublisher{}
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSync)
		defer producer.Close()
		events = broker.NewEventPublisher(producer)
		log.Println("Kafka producer initialized")
	}

	limiter := ratelimit.New()
	sourceClient := client.NewSource(cfg.SourceAPI, limiter)
	targetClient := client.NewTarget(cfg.TargetAPI, limiter)

	orchestrator := service.NewOrchestrator(db, sourceClient, targetClient, redisClient, events, cfg.Sync)

	bootstrapMappings(db, cfg.Sync.MappingFile)

	cronSync := scheduler.New(orchestrator, cfg.Sync.CronSpec, cfg.TargetAPI.Collection, models.SyncPolicy{
		UpdateOnly: cfg.Sync.UpdateOnly,
	})
	if err := cronSync.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer cronSync.Stop()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(orchestrator, db)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// bootstrapMappings seeds the mapping table from a local file on first boot.
// An already-imported document always wins over the file.
func bootstrapMappings(db *store.Store, path string) {
	if path == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, _, err := db.ActiveMappingDocument(ctx); err == nil {
		return
	}

	content, err := os.ReadFile(path)
	if err != nil {
		log.Printf("No mapping file at %s, using built-in defaults", path)
		return
	}
	if _, err := db.SaveMappingDocument(ctx, content); err != nil {
		log.Printf("Failed to import mapping file %s: %v", path, err)
		return
	}
	log.Printf("Imported mapping document from %s", path)
}
