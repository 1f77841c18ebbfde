package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/laraveldev/tg-bot/common/database"
	"github.com/laraveldev/tg-bot/common/logger"
	commonmqtt "github.com/laraveldev/tg-bot/common/mqtt"
	commonredis "github.com/laraveldev/tg-bot/common/redis"
	"github.com/laraveldev/tg-bot/internal/config"
	"github.com/laraveldev/tg-bot/internal/consumer"
	"github.com/laraveldev/tg-bot/internal/evaluator"
	httpapi "github.com/laraveldev/tg-bot/internal/http"
	"github.com/laraveldev/tg-bot/internal/notifier"
	"github.com/laraveldev/tg-bot/internal/repository"
	"github.com/laraveldev/tg-bot/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "tg-bot")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage: Postgres when enabled and reachable, otherwise in-memory
	var db *sql.DB
	repos := repository.NewMemory()
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			if err := database.EnsureSchema(ctx, d); err != nil {
				log.Fatal("Failed to apply schema", zap.Error(err))
			}
			db = d
			repos = repository.NewPostgres(db)
			log.Info("DB enabled for tg-bot")
		} else {
			log.Warn("DB enabled but connection failed, falling back to in-memory storage", zap.Error(err))
		}
	}

	// Event fan-out: Redis stream and MQTT are both optional
	var publishers []service.EventPublisher
	var lock consumer.Locker
	var feed httpapi.EventFeed
	if cfg.RedisEnabled {
		redisClient := commonredis.NewRedisClient(&cfg.Redis)
		if err := commonredis.Ping(ctx, redisClient); err != nil {
			log.Warn("Redis unreachable, sweep runs unguarded", zap.Error(err))
			_ = commonredis.Close(redisClient)
		} else {
			defer commonredis.Close(redisClient)
			lock = consumer.NewSweepLock(redisClient, consumer.SweepLockKey, cfg.Lunch.SweepLockTTL)
			stream := notifier.NewRedisStreamPublisher(redisClient, cfg.Lunch.EventsStream, cfg.Lunch.EventsStreamLen)
			publishers = append(publishers, stream)
			feed = stream
		}
	}
	if cfg.MQTT.Enabled {
		mqttClient, err := commonmqtt.NewClient(&cfg.MQTT.MQTTConfig, log)
		if err != nil {
			log.Warn("MQTT unreachable, events not published over MQTT", zap.Error(err))
		} else {
			defer mqttClient.Disconnect()
			publishers = append(publishers, notifier.NewMQTTPublisher(mqttClient, cfg.MQTT.Topic, cfg.MQTT.QoS))
		}
	}
	events := notifier.NewMultiPublisher(log, publishers...)

	clock := service.SystemClock{Location: cfg.Lunch.Location}
	telegram := notifier.NewTelegramClient(cfg.Telegram, log)
	admins := notifier.NewTelegramAdminChecker(telegram)
	gateway := notifier.NewGateway(telegram, repos.Persons, events, clock, cfg.Telegram.Timeout, log)

	svc := service.NewLunchService(service.Deps{
		Repos:             repos,
		AdminChecker:      admins,
		AdminLister:       admins,
		MemberCounter:     telegram,
		Notifier:          gateway,
		Events:            events,
		Clock:             clock,
		Logger:            log,
		AdminCheckTimeout: cfg.Lunch.AdminCheckTimeout,
	})
	sweeper := evaluator.NewSweeper(svc.Breaks, gateway, log)

	sweeps, err := consumer.NewSweepConsumer(cfg.Lunch, sweeper, svc.Queue, lock, clock, log)
	if err != nil {
		log.Fatal("Failed to create sweep consumer", zap.Error(err))
	}

	router := httpapi.NewRouter(log)
	router.RegisterHealthRoutes()
	router.RegisterLunchRoutes(
		httpapi.NewLunchHandler(svc, sweeper, clock, cfg.Telegram.GroupChatID, log).WithEventFeed(feed),
		httpapi.NewAuth(svc.Breaks, log),
	)
	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 2)
	go func() {
		errCh <- srv.Start()
	}()
	go func() {
		errCh <- sweeps.Start(ctx)
	}()

	log.Info("tg-bot started",
		zap.String("addr", cfg.HTTP.Addr),
		zap.Bool("db", db != nil),
		zap.Int("event_publishers", events.Len()),
		zap.String("timezone", cfg.Lunch.Timezone),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Error("Component exited", zap.Error(err))
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop HTTP server", zap.Error(err))
	}
	if db != nil {
		_ = database.Close(db)
	}
}
