package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/nagham05/chatterly/internal/api"
	"github.com/nagham05/chatterly/internal/blob"
	"github.com/nagham05/chatterly/internal/block"
	"github.com/nagham05/chatterly/internal/chat"
	"github.com/nagham05/chatterly/internal/clock"
	"github.com/nagham05/chatterly/internal/config"
	"github.com/nagham05/chatterly/internal/events"
	"github.com/nagham05/chatterly/internal/group"
	"github.com/nagham05/chatterly/internal/hub"
	"github.com/nagham05/chatterly/internal/logger"
	"github.com/nagham05/chatterly/internal/session"
	"github.com/nagham05/chatterly/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zl, err := logger.New(cfg.App.Env != "production")
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer zl.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mc, err := store.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		zl.Fatalw("mongo connect", "error", err)
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()
	st := store.New(mc.Database(cfg.Mongo.DB), zl)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pub := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, zl)
	defer pub.Close()

	blobs, err := blob.New(ctx, cfg.S3.Region, cfg.S3.Bucket)
	if err != nil {
		zl.Fatalw("s3 init", "error", err)
	}

	clk := clock.New()
	sessions := session.NewManager(st, rdb, cfg.JWT.Secret,
		time.Duration(cfg.JWT.AccessTTLMinutes)*time.Minute, clk, zl)
	chats := chat.NewService(st, pub, clk, zl)
	groups := group.NewManager(st, pub, clk, zl)
	blocks := block.NewService(st, pub, clk)

	presence := hub.NewPresence(rdb, cfg.Redis.Prefix)
	h := hub.New(presence.Publish, zl)
	go presence.Listen(ctx, h)

	_, app := api.NewServer(cfg, zl, st, sessions, chats, groups, blocks, blobs, h, presence, clk)

	go func() {
		if err := app.Listen(":" + cfg.App.PortString()); err != nil {
			zl.Fatalw("server listen", "error", err)
		}
	}()
	zl.Infow("chatterly started", "port", cfg.App.Port, "env", cfg.App.Env)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = app.ShutdownWithContext(shutdownCtx)
	zl.Info("chatterly stopped")
}
