package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/common/logger"
	"github.com/limbovvv/phone-directly/common/mqtt"
	rediscommon "github.com/limbovvv/phone-directly/common/redis"
	"github.com/limbovvv/phone-directly/internal/config"
	httpapi "github.com/limbovvv/phone-directly/internal/http"
	"github.com/limbovvv/phone-directly/internal/service"
	"github.com/limbovvv/phone-directly/internal/store"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "phone-directory")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open store", zap.Error(err))
	}
	defer closeStore()

	// Redis：部门树缓存 + 审计 stream
	var redisClient *redis.Client
	var kv store.KVStore = store.NewMemoryKVStore()
	if cfg.Redis.Enabled {
		c := rediscommon.NewRedisClient(&cfg.Redis.RedisConfig)
		if err := rediscommon.Ping(ctx, c, cfg.Redis.DialTimeout); err == nil {
			redisClient = c
			kv = store.NewRedisKVStore(c)
			defer rediscommon.Close(c)
			log.Info("Redis enabled", zap.String("addr", cfg.Redis.Addr))
		} else {
			log.Warn("Redis enabled but ping failed, using in-process cache", zap.Error(err))
			_ = rediscommon.Close(c)
		}
	}

	// MQTT：变更通知
	var notifier service.Notifier = service.NopNotifier{}
	if cfg.MQTT.Enabled {
		if c, err := mqtt.NewClient(&cfg.MQTT.MQTTConfig); err == nil {
			notifier = service.NewMQTTNotifier(c, cfg.MQTT.Topic, log)
			defer c.Disconnect()
			log.Info("MQTT enabled", zap.String("broker", cfg.MQTT.Broker), zap.String("topic", cfg.MQTT.Topic))
		} else {
			log.Warn("MQTT enabled but connection failed, change notifications disabled", zap.Error(err))
		}
	}

	registry := service.NewPhoneRegistry()
	limiter := service.NewLinkLimiter(cfg.Directory.MaxContactsPerPhoneDefault)
	audit := service.NewAuditService(st, redisClient, cfg.Redis.AuditStream, log)
	departments := service.NewDepartmentService(st, kv, cfg.Redis.ForestCacheTTL, audit, log)
	contacts := service.NewContactService(st, departments, registry, limiter, audit, notifier, log)
	associations := service.NewAssociationService(st, registry, limiter, audit, notifier, log)
	settings := service.NewSettingsService(st, limiter, audit, log)
	bulk := service.NewBulkService(st, departments, registry, limiter, audit, notifier, log)
	users := service.NewUserService(st, audit, log)

	if err := settings.EnsureDefaults(ctx, cfg.Directory.MaxContactsPerPhoneDefault); err != nil {
		log.Fatal("Failed to initialise settings", zap.Error(err))
	}
	if err := users.EnsureAdmin(ctx, cfg.Directory.AdminLogin, cfg.Directory.AdminPassword); err != nil {
		log.Fatal("Failed to create initial admin", zap.Error(err))
	}
	if cfg.Directory.SeedDemo {
		if err := service.SeedDemo(ctx, st, cfg.Directory.MaxContactsPerPhoneDefault, log); err != nil {
			log.Warn("Demo seed failed", zap.Error(err))
		}
	}

	router := httpapi.NewRouter(log)
	router.RegisterHealthRoutes()
	router.RegisterDepartmentRoutes(httpapi.NewDepartmentsHandler(departments, log))
	router.RegisterContactRoutes(httpapi.NewContactsHandler(contacts, associations, log))
	router.RegisterSettingsRoutes(httpapi.NewSettingsHandler(settings, log))
	router.RegisterBulkRoutes(httpapi.NewBulkHandler(bulk, cfg.Directory.ImportMaxBytes, log))
	router.RegisterAuditRoutes(httpapi.NewAuditHandler(audit, log))
	router.RegisterUserRoutes(httpapi.NewUsersHandler(users, log))

	srv := service.NewServer(cfg.HTTP, router.Handler(), log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case err := <-errCh:
		log.Error("HTTP server stopped", zap.Error(err))
		cancel()
	}

	if err := srv.Stop(context.Background()); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
}
