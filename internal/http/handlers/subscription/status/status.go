// Package status реализует HTTP-обработчик получения статуса подписки пользователя.
//
// Handler извлекает идентификатор пользователя из URL, запрашивает сводку о
// подписке через сервис доступа и возвращает её в JSON-формате. Для
// администратора возвращается подписка уровня "orden" без срока действия.
package status

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/daryveda/gifts-entitlement/internal/http/response"
	"github.com/daryveda/gifts-entitlement/internal/lib/sl"
	"github.com/daryveda/gifts-entitlement/internal/models"
)

// Handler управляет HTTP-запросами на получение статуса подписки.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики проверки доступа.
type Service interface {
	SubscriptionStatus(ctx context.Context, userID int64) (*models.Subscription, error)
	HasFeatureAccess(ctx context.Context, userID int64, requiredLevel string) (bool, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Получить статус подписки
// @Description Возвращает сводку о подписке пользователя: активность, тип и уровень. Параметр level дополнительно проверяет доступ к уровню.
// @Tags Subscriptions
// @Produce  json
// @Param user_id path int true "ID пользователя"
// @Param level query string false "Требуемый уровень доступа" Enums(trial, pro, orden)
// @Success 200 {object} map[string]any "Статус подписки"
// @Failure 400 {object} response.ErrorResponse "Некорректный ID"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /subscriptions/{user_id}/status [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.status"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil || userID <= 0 {
		log.Error("failed to decode user_id from url", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode user_id from url"))
		return
	}

	sub, err := h.service.SubscriptionStatus(r.Context(), userID)
	if err != nil {
		log.Error("failed to get subscription status", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not get subscription status"))
		return
	}

	data := map[string]any{
		"subscription": sub,
	}
	if level := r.URL.Query().Get("level"); level != "" {
		allowed, err := h.service.HasFeatureAccess(r.Context(), userID, level)
		if err != nil {
			log.Error("failed to check feature access", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not check access"))
			return
		}
		data["has_access"] = allowed
	}

	log.Info("subscription status resolved",
		slog.Int64("user_id", userID),
		slog.Bool("active", sub.Active))
	render.JSON(w, r, response.StatusOKWithData(data))
}
