package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appchat "github.com/AIENGINE/online-cs-backend/application/chat"
	"github.com/AIENGINE/online-cs-backend/domain/chat"
	"github.com/AIENGINE/online-cs-backend/domain/department"
	"github.com/AIENGINE/online-cs-backend/infrastructure/departments"
	"github.com/AIENGINE/online-cs-backend/infrastructure/upstream"
	httpiface "github.com/AIENGINE/online-cs-backend/interfaces/http"
	"github.com/AIENGINE/online-cs-backend/internal/config"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Optional .env for local development; real deployments use the process env.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	// Configure logging level
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	// Configure logging formatter per environment
	switch cfg.Logging.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logrus.SetReportCaller(cfg.Logging.ReportCaller)

	logrus.WithFields(logrus.Fields{
		"port":  cfg.Server.Port,
		"host":  cfg.Server.Host,
		"model": cfg.Upstream.Model,
		"mode":  cfg.Upstream.Mode,
	}).Info("Starting online customer support backend")

	// Classifier: incremental stream or single-shot, per configuration.
	var classifier chat.ClassifierPort
	if cfg.Upstream.Mode == "single_shot" {
		classifier = upstream.NewSingleShot(cfg.Upstream.APIKey, cfg.Upstream.BaseURL, cfg.Upstream.Model, cfg.Upstream.Timeout)
	} else {
		classifier = upstream.NewProvider(cfg.Upstream.APIKey, cfg.Upstream.BaseURL, cfg.Upstream.Model, cfg.Upstream.Timeout)
	}

	backends := map[department.Key]departments.Backend{
		department.Sports:      {URL: cfg.Departments.Sports.URL, APIKey: cfg.Departments.Sports.APIKey},
		department.Electronics: {URL: cfg.Departments.Electronics.URL, APIKey: cfg.Departments.Electronics.APIKey},
		department.Travel:      {URL: cfg.Departments.Travel.URL, APIKey: cfg.Departments.Travel.APIKey},
	}
	baseDispatcher := departments.NewClient(backends, cfg.Departments.Timeout, cfg.Departments.CacheSize, cfg.Departments.CacheTTL)

	// Wrap with circuit breaker for resilience
	circuitBreakerConfig := departments.CircuitBreakerConfig{
		Enabled:          cfg.CircuitBreaker.Enabled,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		Timeout:          cfg.CircuitBreaker.Timeout,
		MaxRequests:      cfg.CircuitBreaker.MaxRequests,
	}
	dispatcher := departments.NewCircuitBreakerDispatcher(baseDispatcher, circuitBreakerConfig)

	logrus.WithFields(logrus.Fields{
		"enabled":           circuitBreakerConfig.Enabled,
		"failure_threshold": circuitBreakerConfig.FailureThreshold,
		"timeout":           circuitBreakerConfig.Timeout,
	}).Info("Circuit breaker configured")

	service := appchat.NewService(classifier, dispatcher, cfg.Upstream.SummaryPrompt, cfg.Upstream.MaxTurns)
	router := httpiface.NewRouter(service, cfg.Server.CorsOrigins)
	ginRouter := router.SetupRoutes()

	address := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           ginRouter,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// SSE responses stay open for the whole exchange; no write deadline.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for interrupt signal to trigger shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		logrus.WithField("address", address).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Block until signal is received
	<-c
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	} else {
		logrus.Info("Server shutdown complete")
	}
}
