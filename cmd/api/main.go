package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/Dan9191/bank-cards/internal/app"
	"github.com/Dan9191/bank-cards/internal/config"
	"github.com/Dan9191/bank-cards/internal/handler"
	"github.com/Dan9191/bank-cards/internal/jobs"
	"github.com/Dan9191/bank-cards/internal/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := app.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize layers
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize application: %v", err)
	}
	defer a.Close()
	if err := a.SeedAdmin(ctx); err != nil {
		logger.Fatalf("%v", err)
	}

	h := handler.NewHandler(a.Cards, a.Transfers, a.Users, logger)
	r := h.Routes(middleware.AuthMiddleware(cfg.JWTSecret, a.Users, logger))

	// Card audit, disabled by an empty schedule
	var scheduler *cron.Cron
	if cfg.AuditSchedule != "" {
		if scheduler, err = jobs.Schedule(cfg.AuditSchedule, a.Auditor, logger); err != nil {
			logger.Fatalf("Failed to schedule card audit: %v", err)
		}
		scheduler.Start()
	}

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		if scheduler != nil {
			<-scheduler.Stop().Done()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatalf("Server failed: %v", err)
	}
}
