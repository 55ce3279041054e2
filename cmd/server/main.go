package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/commute-rides/internal/config"
	"github.com/example/commute-rides/internal/directory"
	httpapi "github.com/example/commute-rides/internal/http"
	"github.com/example/commute-rides/internal/logging"
	"github.com/example/commute-rides/internal/notify"
	"github.com/example/commute-rides/internal/payments"
	"github.com/example/commute-rides/internal/ride"
	"github.com/example/commute-rides/internal/storage"
	"github.com/example/commute-rides/internal/views"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	store := buildStore(cfg, logger)

	empClient := directory.NewEmployeeClient(cfg.EmployeeBaseURL, cfg.DirectoryTimeout)
	vehClient := directory.NewVehicleClient(cfg.VehicleBaseURL, cfg.DirectoryTimeout)
	vehicles := directory.NewVehicleCache(vehClient, cfg.CacheTTL)

	var employees interface {
		directory.EmployeeSource
		views.EmployeeResolver
	}
	if cfg.RedisAddr != "" {
		employees = directory.NewRedisEmployeeCache(empClient, cfg.RedisAddr, cfg.RedisPassword, cfg.CacheTTL)
	} else {
		employees = directory.NewEmployeeCache(empClient, cfg.CacheTTL)
	}

	wsreg := notify.NewWSRegistry()
	backends := []notify.Notifier{wsreg}
	if len(cfg.KafkaBrokers) > 0 {
		kn := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kn.Close()
		backends = append(backends, kn)
	}
	hook := notify.NewHook(logger, backends...)

	var fares payments.FareHolder
	if cfg.StripeAPIKey != "" {
		fares = payments.NewStripeClient(cfg.StripeAPIKey)
	}

	engine := &ride.Engine{
		Store:     store,
		Vehicles:  vehicles,
		Employees: employees,
		Hook:      hook,
		Payments:  fares,
		Currency:  cfg.FareCurrency,
		Logger:    logger,
	}
	assembler := &views.Assembler{Employees: employees}
	srv := httpapi.NewServer(engine, assembler, wsreg, cfg.PageSizeMax, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("commute-rides listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

// buildStore prefers Postgres when a DSN is configured and falls back to
// the in-memory store for local runs.
func buildStore(cfg config.ServerConfig, logger *slog.Logger) storage.RideStore {
	if cfg.PGDSN == "" {
		logger.Info("PG_DSN not set, using in-memory ride store")
		return storage.NewMemoryStore()
	}
	if cfg.RunMigrations {
		migrate(cfg.PGDSN, logger)
	}
	ps, err := storage.NewPostgresStore(cfg.PGDSN)
	if err != nil {
		logger.Error("postgres unavailable, using in-memory ride store", "error", err)
		return storage.NewMemoryStore()
	}
	return ps
}

func migrate(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open failed", "error", err)
		return
	}
	defer db.Close()
	path := filepath.Join("migrations", "001_create_rides.sql")
	b, err := os.ReadFile(path)
	if err != nil {
		logger.Error("migration read failed", "path", path, "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec failed", "path", path, "error", err)
		return
	}
	logger.Info("migration applied", "path", path)
}
