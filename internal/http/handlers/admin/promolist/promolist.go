// Package promolist реализует HTTP-обработчик получения списка промокодов.
package promolist

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/daryveda/gifts-entitlement/internal/http/response"
	"github.com/daryveda/gifts-entitlement/internal/lib/sl"
	"github.com/daryveda/gifts-entitlement/internal/models"
)

// Handler управляет HTTP-запросами на получение списка промокодов.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики списка промокодов.
type Service interface {
	List(ctx context.Context) ([]*models.PromoCode, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Список промокодов
// @Description Возвращает все промокоды, включая отключенные, от новых к старым.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} map[string]any "Список промокодов"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/promocodes [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.promolist"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	promos, err := h.service.List(r.Context())
	if err != nil {
		log.Error("failed to list promocodes", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list promocodes"))
		return
	}

	log.Info("promocodes listed", slog.Int("count", len(promos)))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"promocodes": promos,
		"count":      len(promos),
	}))
}
