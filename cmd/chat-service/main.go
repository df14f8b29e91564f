package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/helpdeskhq/chat-service/internal/api"
	"github.com/helpdeskhq/chat-service/internal/auth"
	cfgpkg "github.com/helpdeskhq/chat-service/internal/config"
	"github.com/helpdeskhq/chat-service/internal/events"
	"github.com/helpdeskhq/chat-service/internal/logger"
	"github.com/helpdeskhq/chat-service/internal/presence"
	"github.com/helpdeskhq/chat-service/internal/store"
	"github.com/helpdeskhq/chat-service/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_FILE")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := cfgpkg.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zlog, err := logger.New(logger.Config{Development: cfg.App.Env == "development"})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx := context.Background()

	mc, err := store.NewMongoClient(ctx, cfg.Mongo.URI)
	if err != nil {
		zlog.Fatalw("mongo connect", "err", err)
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()

	repos := store.NewMongo(mc.Database(cfg.Mongo.Database))
	if err := repos.EnsureIndexes(ctx); err != nil {
		zlog.Fatalw("index creation", "err", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMessages, cfg.Kafka.TopicPresence, zlog)
	defer func() { _ = producer.Close() }()

	mirror := presence.NewMirror(rdb, cfg.Redis.Prefix)
	tracker := presence.NewTracker(repos.Sessions, repos.Users, mirror, producer, zlog)
	verifier := auth.NewVerifier(cfg.App.JWTSecret, repos.Users)

	hub := ws.NewHub()
	gateway := ws.NewGateway(hub, verifier, tracker, repos.Conversations, repos.Messages, producer, zlog, ws.Options{
		PingInterval:   cfg.PingInterval,
		WriteTimeout:   cfg.WriteTimeout,
		MaxMessageSize: cfg.WS.MaxMessageSizeBytes,
		SendBufferSize: cfg.WS.SendBufferSize,
	})

	app := api.NewServer(gateway, mc)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		if err := app.Listen(addr); err != nil {
			zlog.Fatalw("server listen", "err", err)
		}
	}()
	zlog.Infow("chat-service started", "port", cfg.App.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(shutdownCtx)
	zlog.Infow("chat-service stopped")
}
