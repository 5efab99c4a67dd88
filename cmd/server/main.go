// Package main starts the search web service and its export worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"oc-search-go/internal/config"
	"oc-search-go/internal/handler"
	"oc-search-go/internal/plugin"
	"oc-search-go/internal/repository"
	"oc-search-go/internal/schema"
	"oc-search-go/internal/service"
	"oc-search-go/pkg/database"
	"oc-search-go/pkg/es"
	"oc-search-go/pkg/kafka"
	"oc-search-go/pkg/log"
	"oc-search-go/pkg/storage"
	"oc-search-go/pkg/token"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "configuration file")
	worker := flag.Bool("worker", true, "run the export task consumer in this process")
	flag.Parse()

	// 1. configuration and logging
	config.Init(*configPath)
	cfg := config.Conf

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("logger initialized")

	// 2. stores and brokers
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := repository.AutoMigrate(database.DB); err != nil {
		log.Fatal("failed to migrate the configuration store", err)
	}
	esClient, err := es.NewClient(cfg.Elasticsearch)
	if err != nil {
		log.Fatal("failed to create the Elasticsearch client", err)
	}
	kafka.InitProducer(cfg.Kafka)

	// 3. services
	schemaRepo := repository.NewSchemaRepository(database.DB)
	schemas := schema.NewCache(schemaRepo, time.Duration(cfg.Search.CacheTTLSeconds)*time.Second)
	plugins := plugin.NewRegistry()
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)

	searchService := service.NewSearchService(schemas, plugins, esClient, cfg.Search)
	exportService := service.NewExportService(schemas, plugins, esClient,
		storage.NewStore(cfg.MinIO.BucketName), service.NewRedisStore(database.RDB), service.NewKafkaQueue(), cfg.Export)
	adminService := service.NewAdminService(schemaRepo, schemas)

	// 4. export worker
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if *worker {
		go kafka.StartConsumer(workerCtx, cfg.Kafka, exportService)
	}

	// 5. routes
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.NewSearchHandler(searchService, exportService), handler.NewAdminHandler(adminService), jwtManager)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received, stopping the server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP server shutdown failed: %v", err)
	}
	stopWorker()
	if err := kafka.CloseProducer(); err != nil {
		log.Errorf("failed to close Kafka producer: %v", err)
	}
	log.Info("server stopped")
}
