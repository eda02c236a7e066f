package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-vault-session/activity"
	"github.com/jrsteele09/go-vault-session/api"
	"github.com/jrsteele09/go-vault-session/internal/config"
	"github.com/jrsteele09/go-vault-session/notify"
	"github.com/jrsteele09/go-vault-session/session"
	"github.com/jrsteele09/go-vault-session/tokenstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running client")
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return fmt.Errorf("config.New: %w", err)
	}
	configureLogging(c.GetLogLevel())
	displayAppname(c.GetAppName())

	client, err := api.New(c.GetBaseURL(), api.WithTimeout(c.GetRequestTimeout()))
	if err != nil {
		return fmt.Errorf("api.New: %w", err)
	}
	store, err := tokenstore.NewSQLiteRepo(config.TokenDatabasePath(c), c.GetTokenKey())
	if err != nil {
		return fmt.Errorf("tokenstore.NewSQLiteRepo: %w", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	if addr := c.GetMetricsAddr(); addr != "" {
		server := &http.Server{Addr: addr, Handler: metricsHandler(reg), ReadHeaderTimeout: 5 * time.Second}
		go listenAndServe(server)
		defer shutdown(server)
	}

	bus := activity.NewBus()
	sh := newShell(bus, reg)
	defer sh.Close()

	manager := session.New(client, store, notify.NewLogNotifier(log.Logger),
		session.WithSettings(c),
		session.WithActivitySource(bus),
		session.WithMetrics(session.NewMetrics(reg)),
		session.WithOnLoggedOut(sh.loggedOut),
	)
	defer manager.StopLifecycle()
	sh.manager = manager

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if manager.Restore(ctx) {
		user, _ := manager.User()
		fmt.Printf("Welcome back, %s\n", user.Username)
	} else {
		fmt.Println("Not logged in. Type 'login <username>' to start.")
	}

	return sh.Run(ctx)
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("Serving metrics")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Err(err).Msg("Metrics server stopped")
	}
}

func shutdown(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Err(err).Msg("Metrics server shutdown")
	}
}

func configureLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
