// Package promostats реализует HTTP-обработчик получения статистики промокода.
package promostats

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/daryveda/gifts-entitlement/internal/http/response"
	"github.com/daryveda/gifts-entitlement/internal/lib/sl"
	"github.com/daryveda/gifts-entitlement/internal/models"
	"github.com/daryveda/gifts-entitlement/internal/storage"
)

// Handler управляет HTTP-запросами на получение статистики промокода.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики статистики промокода.
type Service interface {
	Stats(ctx context.Context, code string) (*models.PromoCodeStats, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Статистика промокода
// @Description Возвращает параметры промокода и список его активаций, включая отключенные коды.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param code path string true "Код промокода"
// @Success 200 {object} map[string]any "Статистика промокода"
// @Failure 400 {object} response.ErrorResponse "Пустой код"
// @Failure 404 {object} response.ErrorResponse "Промокод не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/promocodes/{code}/stats [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.promostats"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	code := chi.URLParam(r, "code")
	if code == "" {
		log.Error("failed to decode code from url")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode code from url"))
		return
	}

	stats, err := h.service.Stats(r.Context(), code)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		log.Error("promocode not found", sl.Err(err))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("promocode not found"))
		return
	case err != nil:
		log.Error("failed to get promocode stats", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not get promocode stats"))
		return
	}

	log.Info("promocode stats resolved",
		slog.String("code", code),
		slog.Int("usages", len(stats.Usages)))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"stats": stats,
	}))
}
