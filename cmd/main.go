package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/franzego/coursenotify/internal/clock"
	"github.com/franzego/coursenotify/internal/config"
	"github.com/franzego/coursenotify/internal/handlers"
	"github.com/franzego/coursenotify/internal/notification"
	"github.com/franzego/coursenotify/internal/queue"
	"github.com/franzego/coursenotify/internal/repository"
	"github.com/franzego/coursenotify/internal/services"
	"github.com/franzego/coursenotify/pkg/logger"
	"github.com/franzego/coursenotify/pkg/mongodb"
	redispkg "github.com/franzego/coursenotify/pkg/redis"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	zlog, err := logger.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		log.Fatal("Failed to build logger: ", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongo, err := mongodb.Connect(ctx, cfg.Mongo, zlog)
	if err != nil {
		return err
	}
	defer func() { _ = mongo.Close(context.Background()) }()

	rdb, err := redispkg.InitRedis(ctx, cfg.Redis, zlog)
	if err != nil {
		return err
	}
	defer rdb.Close()

	courses := repository.NewCourseRepository(mongo.Database)
	users := repository.NewUserRepository(mongo.Database)
	history := repository.NewRedisHistory(rdb, cfg.Notifications.HistorySize)

	var mailer notification.Mailer
	var queueCheck handlers.QueueChecker
	switch cfg.Email.Transport {
	case config.TransportQueue:
		rabbit, err := queue.NewRabbitMqService(cfg.RabbitMQ, zlog)
		if err != nil {
			return err
		}
		defer rabbit.CloseConnection()
		if err := rabbit.SetUpExchangeAndQueue(); err != nil {
			return err
		}
		mailer = queue.NewEmailPublisher(rabbit, zlog)
		queueCheck = rabbit
	case config.TransportResend:
		mailer = services.NewResendMailer(cfg.Email, false, zlog)
	default:
		mailer = services.NewResendMailer(cfg.Email, true, zlog)
	}

	clk := clock.New()
	schedOpts := []notification.SchedulerOption{
		notification.WithDispatchTimeout(cfg.Notifications.DispatchTimeout),
		notification.WithSchedulerHistory(history),
	}
	if cfg.Notifications.Durable {
		schedOpts = append(schedOpts, notification.WithPendingStore(repository.NewRedisPendingStore(rdb)))
	}
	scheduler := notification.NewScheduler(courses, mailer, clk, zlog, schedOpts...)
	defer scheduler.Stop()

	if n, err := scheduler.Recover(ctx); err != nil {
		zlog.Error("failed to recover scheduled announcements", zap.Error(err))
	} else if n > 0 {
		zlog.Info("recovered scheduled announcements", zap.Int("count", n))
	}

	notifier := notification.NewNotifier(
		notification.NewRecipientResolver(users),
		scheduler, mailer, courses, clk, zlog,
		notification.WithGracePeriod(cfg.Notifications.GracePeriod),
		notification.WithHistory(history),
	)

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(
		handlers.RouterConfig{
			JWTSecret:       cfg.Auth.JWTSecret,
			RateLimit:       cfg.RateLimit.Requests,
			RateLimitWindow: cfg.RateLimit.Window,
		},
		handlers.NewCourseHandler(courses, notifier, zlog),
		handlers.NewNotificationHandler(notifier, zlog),
		handlers.NewHealthHandler(mongo, rdb, queueCheck),
		rdb, zlog,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.Timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
