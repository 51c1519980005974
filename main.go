package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	logger "github.com/sirupsen/logrus"

	"signalexecutor/src/database"
	"signalexecutor/src/executors"
	"signalexecutor/src/server"
	"signalexecutor/src/stats"
)

var (
	PORT     = os.Getenv("SERVER_PORT")
	APP_NAME = os.Getenv("APP_NAME")
)

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	_ = godotenv.Load()
	SetupLogger()
	defer handlePanic()

	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	registry := prometheus.NewRegistry()
	collector := stats.NewPrometheus(registry)

	runtime, err := executors.NewRuntime(collector)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build runtime")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := runtime.StartCatalog(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start catalog refresher")
	}

	go func() {
		if err := runtime.StartIngestLoop(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("ingest loop exited")
			stop()
		}
	}()
	go func() {
		if err := runtime.StartEntryLoop(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("entry loop exited")
			stop()
		}
	}()
	go func() {
		if err := runtime.StartProtectionLoop(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("protection loop exited")
			stop()
		}
	}()

	server.StartServer(PORT, server.Deps{
		Broker:   runtime.Broker,
		Registry: registry,
	})
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
