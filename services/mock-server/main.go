package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/stoik/mailsync/internal/mock"
)

func main() {
	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{TimeFormat: time.Kitchen}))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	interval := 30 * time.Second
	if v := os.Getenv("GENERATE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			logger.Error("invalid GENERATE_INTERVAL", "value", v, "error", err)
			os.Exit(1)
		}
		interval = d
	}

	server := mock.New()
	if email := os.Getenv("SEED_EMAIL"); email != "" {
		g := server.AddGrant(email, os.Getenv("SEED_TOKEN"))
		folders := server.AddDefaultFolders(g.ID)
		server.GenerateMessages(g.ID, folders[0].ID, 20, time.Now())
		logger.Info("seeded grant", "grant", g.ID, "email", email)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Generate new mail in the background
	go server.Run(ctx, interval)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: server.Router(gin.Logger()),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting mock provider API server", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
