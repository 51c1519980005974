package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"signalexecutor/src/handler"
	"signalexecutor/src/repository"
)

// Deps are the already-wired collaborators the status surface reads from.
type Deps struct {
	Broker   handler.Broker
	Registry *prometheus.Registry
}

func StartServer(port string, deps Deps) {
	config := GetConfig()
	if port == "" {
		port = config.Port
	}

	// Router with middleware
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	if config.APIToken != "" {
		r.Route("/api", func(api chi.Router) {
			api.Use(tokenMiddleware(config.APIToken))
			api.Get("/status/signals", handler.SignalStatusHandler(
				repository.NewSignalRepository(),
				repository.NewOrderRepository(),
			))
			api.Get("/status/signal", handler.SignalLookupHandler(
				repository.NewSignalRepository(),
			))
			if deps.Broker != nil {
				api.Get("/status/positions", handler.PositionsStatusHandler(deps.Broker))
			}
		})
	} else {
		logger.Warn("API_TOKEN not set, /api routes disabled")
	}

	// Graceful server
	// Server setup
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}

// tokenMiddleware admits requests carrying the static bearer token.
func tokenMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
