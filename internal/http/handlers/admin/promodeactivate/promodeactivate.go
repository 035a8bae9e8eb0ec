// Package promodeactivate реализует HTTP-обработчик мягкого отключения промокода.
//
// Отключенный промокод нельзя активировать, но он остаётся в списках и его
// статистика доступна. История активаций сохраняется.
package promodeactivate

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
	"github.com/daryveda/gifts-entitlement/internal/storage"
)

// Handler управляет HTTP-запросами на деактивацию промокодов.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики деактивации промокода.
type Service interface {
	Deactivate(ctx context.Context, code string) error
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Отключить промокод
// @Description Делает промокод недоступным для активации, сохраняя историю использований.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param code path string true "Код промокода"
// @Success 200 {object} map[string]any "Промокод отключен"
// @Failure 400 {object} response.ErrorResponse "Пустой код"
// @Failure 404 {object} response.ErrorResponse "Промокод не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/promocodes/{code}/deactivate [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.promodeactivate"
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

	err := h.service.Deactivate(r.Context(), code)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		log.Error("promocode not found", sl.Err(err))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("promocode not found"))
		return
	case err != nil:
		log.Error("failed to deactivate promocode", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not deactivate promocode"))
		return
	}

	log.Info("promocode deactivated", slog.String("code", code))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"code": code,
	}))
}
