package bootstrap

import (
	"context"
	"fmt"
	"log"

	"smart-docqa-client/internal/config"
	"smart-docqa-client/internal/pkg/logger"
	"smart-docqa-client/internal/repository/contract"
	"smart-docqa-client/internal/repository/implementation"
	"smart-docqa-client/internal/repository/memory"
	"smart-docqa-client/internal/service"
	"smart-docqa-client/pkg/events"
	"smart-docqa-client/pkg/gateway"
	"smart-docqa-client/pkg/session"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	Config *config.Config
	Logger logger.ILogger

	// Sessions is nil when the service runs without authentication
	Sessions   *session.Manager
	Gateway    *gateway.Client
	Bus        *events.Bus
	Operations service.IOperationService

	closers []func() error
}

func NewContainer(cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction(), cfg.App.LogConsole)

	// 2. Event Bus
	bus := events.NewBus(watermill.NewStdLogger(false, false))

	c := &Container{
		Config: cfg,
		Logger: sysLogger,
		Bus:    bus,
	}
	c.closers = append(c.closers, bus.Close)

	// 3. Token storage
	if cfg.Service.RequiresAuth {
		repo, err := c.newTokenRepository(cfg.Session)
		if err != nil {
			return nil, err
		}
		c.Sessions = session.NewManager(repo, cfg.Session.TokenKey)
	}

	// 4. Gateway & Coordinator
	c.Gateway = gateway.NewClient(cfg.Service.BaseURL, cfg.Service.Timeout, cfg.Service.QueryTopK, sysLogger)

	var tokens service.TokenKeeper
	if c.Sessions != nil {
		tokens = c.Sessions
	}
	c.Operations = service.NewOperationService(c.Gateway, tokens, bus, sysLogger, cfg.Service.RequiresAuth)

	sysLogger.Info("bootstrap", "container ready", map[string]interface{}{
		"base_url":      cfg.Service.BaseURL,
		"requires_auth": cfg.Service.RequiresAuth,
		"token_store":   cfg.Session.Store,
	})
	return c, nil
}

func (c *Container) newTokenRepository(cfg config.SessionConfig) (contract.ITokenRepository, error) {
	switch cfg.Store {
	case config.StoreFile:
		return implementation.NewFileTokenRepository(cfg.TokenFile), nil
	case config.StoreMemory:
		return memory.NewTokenRepository(), nil
	case config.StoreRedis:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{
				Addr: cfg.RedisURL,
			}
		}
		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		c.closers = append(c.closers, rdb.Close)
		return implementation.NewRedisTokenRepository(rdb), nil
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.Store)
	}
}

// Close releases the bus and any store connection, then flushes the log
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			log.Printf("[WARN] close: %v", err)
		}
	}
	_ = c.Logger.Sync()
}
