package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/ray-remotestate/restro-qr/config"
	"github.com/ray-remotestate/restro-qr/database"
	"github.com/ray-remotestate/restro-qr/handlers"
	"github.com/ray-remotestate/restro-qr/notifier"
	"github.com/ray-remotestate/restro-qr/realtime"
	"github.com/ray-remotestate/restro-qr/server"
	"github.com/ray-remotestate/restro-qr/worker"
)

const shutdownTimeOut = 10 * time.Second

func setupLogging(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithError(err).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func main() {
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config, error: %v", err)
	}
	setupLogging(cfg)

	if err := database.ConnectAndMigrate(cfg.Database); err != nil {
		logrus.Panicf("failed to initialize database, error: %v", err)
	}
	logrus.Info("migration is successful")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mailer, err := notifier.New(ctx, cfg.Email)
	if err != nil {
		logrus.WithError(err).Warn("failed to set up SES, emails will only be logged")
		mailer = notifier.LogMailer{}
	}
	notifier.SetMailer(mailer)

	var bus *realtime.KafkaBus
	if cfg.Kafka.Enabled() {
		bus = realtime.NewKafkaBus(cfg.Kafka, realtime.Default)
		realtime.SetPublisher(bus)
		go func() {
			if err := bus.Run(ctx); err != nil {
				logrus.WithError(err).Error("kafka consumer stopped")
			}
		}()
		logrus.WithField("topic", cfg.Kafka.Topic).Info("order events go through kafka")
	}

	go worker.NewReconciler(cfg.Reconciler).Run(ctx)

	handlers.SetPublicBaseURL(cfg.PublicBaseURL)
	srv := server.SetupRoutes()
	go func() {
		logrus.WithField("addr", cfg.Addr).Info("server is running")
		if err := srv.Run(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Panicf("failed to run server, error: %v", err)
		}
	}()

	<-done
	logrus.Info("shutting down...")

	var result *multierror.Error
	if err := srv.Shutdown(shutdownTimeOut); err != nil {
		result = multierror.Append(result, err)
	}
	cancel()
	if bus != nil {
		realtime.SetPublisher(nil)
		if err := bus.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	realtime.Default.Close()
	if err := database.ShutdownDatabase(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		logrus.WithError(err).Error("unclean shutdown")
		return
	}
	logrus.Info("system is shut ..zzz")
}
