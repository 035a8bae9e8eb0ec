package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/daryveda/gifts-entitlement/internal/cache"
	"github.com/daryveda/gifts-entitlement/internal/config"
	"github.com/daryveda/gifts-entitlement/internal/lib/jwt"
	"github.com/daryveda/gifts-entitlement/internal/migrations"
	"github.com/daryveda/gifts-entitlement/internal/services"
	"github.com/daryveda/gifts-entitlement/internal/storage"
	"github.com/daryveda/gifts-entitlement/internal/storage/postgres"
	"github.com/daryveda/gifts-entitlement/internal/storage/restapi"
	"github.com/daryveda/gifts-entitlement/internal/storage/sqlitestore"
)

// App держит HTTP-сервер и подключения приложения.
type App struct {
	server *http.Server
	logger *slog.Logger
	store  storage.EntitlementStore
}

// NewStore открывает хранилище, выбранное в конфигурации.
// Бэкенд выбирается ровно один раз при старте процесса.
func NewStore(ctx context.Context, cfg *config.Config) (storage.EntitlementStore, error) {
	const op = "app.entitlement.NewStore"

	switch cfg.Backend {
	case config.BackendSQLite:
		return sqlitestore.New(ctx, cfg.SQLitePath)
	case config.BackendPostgres:
		db, err := postgres.New(ctx, cfg.PostgresURL, cfg.MaxConns, cfg.CommandTimeout)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return db, nil
	case config.BackendRest:
		return restapi.New(ctx, cfg.RestURL, cfg.RestAPIKey)
	default:
		return nil, fmt.Errorf("%s: unknown storage backend %q", op, cfg.Backend)
	}
}

// New собирает приложение: хранилище, кэш, сервисы и маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := NewStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	maker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	userService := services.NewUserService(store, cfg.TrialDays, logger)
	ledgerService := services.NewLedgerService(store, cacheRedis, logger)
	promoService := services.NewPromoService(store, ledgerService, logger)
	accessService := services.NewAccessService(store, cacheRedis, logger)

	if err := userService.BootstrapAdmins(ctx, cfg.AdminIDs); err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger,
		userService, accessService, ledgerService, promoService,
		maker, cfg.WebhookSecret, cfg.ServiceSecret)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		store:  store,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его при отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.store.Close(); closeErr != nil {
			a.logger.Error("failed to close storage", slog.Any("err", closeErr))
		}
		return err
	}
}
