package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"showings/internal/config"
	"showings/internal/domain"
	"showings/internal/msgraph"
	"showings/internal/oauth"
	"showings/internal/service/availability"
	"showings/internal/service/booking"
	"showings/internal/service/credentials"
	"showings/internal/store"
	"showings/internal/store/file"
	"showings/internal/store/memory"
	"showings/internal/store/postgres"
	"showings/internal/transport/httpapi"
)

// Expired booking records are invisible to reads and replaced on conflicting
// writes; the periodic prune only reclaims the dead rows.
const bookingRecordPruneInterval = time.Hour

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "showings-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "showings-server"),
	)
	slog.SetDefault(log)

	log.Info("starting", slog.String("http_addr", cfg.HTTPAddr), slog.String("store_backend", cfg.StoreBackend), slog.String("log_level", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var credStore store.CredentialStore
	var recordStore store.BookingRecordStore

	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
			log.Error("database connection failed", args...)
			os.Exit(1)
		}
		defer func() {
			if err := postgres.Close(db); err != nil {
				log.Warn("database close failed", slog.Any("err", err))
			}
		}()
		credStore = postgres.NewCredentialRepo(db, domain.ProviderMicrosoft)
		records := postgres.NewBookingRecordRepo(db)
		recordStore = records
		go store.RunPruner(ctx, records, bookingRecordPruneInterval, log)

	case config.StoreBackendFile:
		fs, err := file.NewCredentialStore(cfg.CredentialFilePath)
		if err != nil {
			log.Error("credential file open failed", slog.Any("err", err), slog.String("path", cfg.CredentialFilePath))
			os.Exit(1)
		}
		credStore = fs
		recordStore = memory.NewBookingRecordStore()
	}

	refresher := oauth.NewClient(oauth.Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		Tenant:       cfg.OAuthTenant,
		Scopes:       cfg.OAuthScopes,
		Timeout:      cfg.ProviderTimeout,
	})

	manager := credentials.NewManager(credStore, refresher, credentials.Options{
		Provider:        domain.ProviderMicrosoft,
		ExpirySkew:      cfg.ExpirySkew,
		RefreshAttempts: cfg.RefreshAttempts,
		RefreshBackoff:  cfg.RefreshBackoff,
		Logger:          log,
	})

	calendar := msgraph.NewClient(msgraph.Config{
		BaseURL: cfg.GraphBaseURL,
		Timeout: cfg.ProviderTimeout,
	})

	hours := domain.BusinessHours{
		StartHour:  cfg.BusinessStartHour,
		EndHour:    cfg.BusinessEndHour,
		SlotLength: cfg.SlotLength,
		ClosedDays: cfg.ClosedDays,
	}

	availabilitySvc := availability.NewService(manager, calendar, hours)
	bookingSvc := booking.NewService(manager, calendar, recordStore, cfg.IdempotencyRetention, log)
	api := httpapi.NewServer(availabilitySvc, bookingSvc, manager, cfg.WindowDays, log)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.TimeoutHandler(api.Handler(), cfg.RequestTimeout),
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("http server started", slog.String("http_addr", cfg.HTTPAddr))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdown(log, srv, cfg.ShutdownTimeout)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped with error", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func shutdown(log *slog.Logger, srv *http.Server, timeout time.Duration) {
	log.Info("shutting down http server", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("graceful shutdown failed; closing", slog.Any("err", err))
		_ = srv.Close()
		return
	}
	log.Info("http server stopped")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
