package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"cipherchat/internal/config"
	"cipherchat/internal/directory"
	"cipherchat/internal/relay"
	redisSvc "cipherchat/internal/service/redis"
	"cipherchat/internal/store"
	"cipherchat/internal/utils/log"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		log.Fatal("loading config failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(ctx, cfg.History)
	if err != nil {
		log.Fatal("wiring history store failed", zap.Error(err))
	}

	dir, err := buildDirectory(ctx, cfg.Directory)
	if err != nil {
		log.Fatal("wiring directory failed", zap.Error(err))
	}

	registry := relay.NewRegistry(st)
	srv := relay.NewServer(cfg.Listen, dir, registry)
	if err := srv.Run(ctx); err != nil {
		log.Fatal("relay stopped", zap.Error(err))
	}
}

func buildStore(ctx context.Context, cfg config.History) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemory(), nil
	case config.BackendRedis:
		rdb := goredis.NewClient(&goredis.Options{
			Addr: cfg.RedisAddr,
		})
		svc := redisSvc.NewRedis(rdb)
		if err := svc.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis at %q: %w", cfg.RedisAddr, err)
		}
		return store.NewRedis(svc), nil
	}
	return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
}

func buildDirectory(ctx context.Context, cfg config.Directory) (directory.Directory, error) {
	static, err := directory.NewStatic(cfg.Seed, cfg.StaticUsers())
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case config.BackendStatic:
		return static, nil
	case config.BackendMongo:
		db, err := initMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		mongoDir := directory.NewMongo(db.Database(cfg.MongoDatabase))

		// Provision the public half of the static roster on first start.
		contacts, err := static.Contacts(ctx, "")
		if err != nil {
			return nil, err
		}
		for _, user := range contacts {
			if err := mongoDir.Ensure(ctx, user); err != nil {
				return nil, err
			}
		}
		return mongoDir, nil
	}
	return nil, fmt.Errorf("unknown directory backend %q", cfg.Backend)
}

func initMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
