package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/chattcp/internal/chatserver"
	"github.com/adred-codev/chattcp/internal/config"
	"github.com/adred-codev/chattcp/internal/logging"
	"github.com/adred-codev/chattcp/internal/metrics"
	"github.com/adred-codev/chattcp/internal/store"
)

// defaults per the server's CLI surface: `server [port [session_timeout_seconds]]`.
const (
	defaultPort           = 8888
	defaultSessionTimeout = 3600
)

func main() {
	port := defaultPort
	if len(os.Args) > 1 {
		p, err := strconv.Atoi(os.Args[1])
		if err != nil {
			log.Fatalf("invalid port %q: %v", os.Args[1], err)
		}
		port = p
	}

	sessionTimeout := defaultSessionTimeout
	if len(os.Args) > 2 {
		t, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("invalid session_timeout_seconds %q: %v", os.Args[2], err)
		}
		sessionTimeout = t
	}

	bootLog := log.New(os.Stdout, "[chattcp] ", log.LstdFlags)

	logger := logging.New("info", "json")
	cfg, err := config.Load(&logger)
	if err != nil {
		bootLog.Fatalf("failed to load configuration: %v", err)
	}
	logger = logging.New(cfg.LogLevel, cfg.LogFormat)

	if len(os.Args) > 1 {
		cfg.Addr = fmt.Sprintf(":%d", port)
	}
	if len(os.Args) > 2 {
		cfg.SessionTimeout = time.Duration(sessionTimeout) * time.Second
	}
	cfg.Log(logger)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise account store")
	}
	defer db.Close()

	srv, err := chatserver.New(db, cfg.MaxSessions, cfg.SessionTimeout, cfg.ReapInterval, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build chat server")
	}
	if err := srv.Listen(cfg.Addr); err != nil {
		logger.Fatal().Err(err).Msg("failed to bind listener")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go metrics.Serve(ctx, cfg.MetricsAddr, logger)
	go metrics.SampleResources(ctx, 15*time.Second, logger)

	logger.Info().Str("addr", cfg.Addr).Msg("starting chat server")
	if err := srv.Serve(ctx); err != nil {
		logger.Fatal().Err(err).Msg("chat server exited")
	}
}
