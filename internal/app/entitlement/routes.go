// Package entitlement собирает HTTP-приложение сервиса подписок и промокодов.
package entitlement

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/daryveda/gifts-entitlement/internal/http/handlers/admin/promocreate"
	"github.com/daryveda/gifts-entitlement/internal/http/handlers/admin/promodeactivate"
	"github.com/daryveda/gifts-entitlement/internal/http/handlers/admin/promolist"
	"github.com/daryveda/gifts-entitlement/internal/http/handlers/admin/promoremove"
	"github.com/daryveda/gifts-entitlement/internal/http/handlers/admin/promostats"
	adminstats "github.com/daryveda/gifts-entitlement/internal/http/handlers/admin/stats"
	"github.com/daryveda/gifts-entitlement/internal/http/handlers/admin/userlist"
	"github.com/daryveda/gifts-entitlement/internal/http/handlers/auth/token"
	"github.com/daryveda/gifts-entitlement/internal/http/handlers/payment/paymentlist"
	"github.com/daryveda/gifts-entitlement/internal/http/handlers/payment/webhook"
	"github.com/daryveda/gifts-entitlement/internal/http/handlers/promo/redeem"
	"github.com/daryveda/gifts-entitlement/internal/http/handlers/subscription/health"
	"github.com/daryveda/gifts-entitlement/internal/http/handlers/subscription/status"
	"github.com/daryveda/gifts-entitlement/internal/http/handlers/user/birthdate"
	"github.com/daryveda/gifts-entitlement/internal/http/handlers/user/register"
	"github.com/daryveda/gifts-entitlement/internal/http/middlewarectx"
	"github.com/daryveda/gifts-entitlement/internal/lib/jwt"
	"github.com/daryveda/gifts-entitlement/internal/services"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(
	r chi.Router,
	logger *slog.Logger,
	userService *services.UserService,
	accessService *services.AccessService,
	ledgerService *services.LedgerService,
	promoService *services.PromoService,
	maker jwt.Maker,
	webhookSecret string,
	serviceSecret string,
) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(logger))

		// Открытые конечные точки
		r.Get("/health", health.New(logger).ServeHTTP)
		r.Post("/users", register.New(logger, userService).ServeHTTP)
		r.Put("/users/birthdate", birthdate.New(logger, userService).ServeHTTP)
		r.Get("/subscriptions/{user_id}/status", status.New(logger, accessService).ServeHTTP)
		r.Get("/users/{user_id}/payments", paymentlist.New(logger, ledgerService).ServeHTTP)
		r.Post("/promocodes/redeem", redeem.New(logger, promoService).ServeHTTP)
		r.Post("/auth/token", token.New(logger, accessService, maker, serviceSecret).ServeHTTP)

		// Webhook endpoint (подпись проверяется внутри обработчика)
		r.Post("/payments/webhook", webhook.New(logger, ledgerService, webhookSecret).ServeHTTP)

		// Группа административных операций с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(maker, logger))
			r.Use(middlewarectx.AdminOnlyMiddleware(logger))
			r.Post("/admin/promocodes", promocreate.New(logger, promoService).ServeHTTP)
			r.Get("/admin/promocodes", promolist.New(logger, promoService).ServeHTTP)
			r.Delete("/admin/promocodes/{id}", promoremove.New(logger, promoService).ServeHTTP)
			r.Post("/admin/promocodes/{code}/deactivate", promodeactivate.New(logger, promoService).ServeHTTP)
			r.Get("/admin/promocodes/{code}/stats", promostats.New(logger, promoService).ServeHTTP)
			r.Get("/admin/users", userlist.New(logger, userService).ServeHTTP)
			r.Get("/admin/stats", adminstats.New(logger, userService).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
