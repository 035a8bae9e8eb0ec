// Package promoremove реализует HTTP-обработчик полного удаления промокода.
//
// Удаление затирает и сам промокод, и историю его активаций, поэтому после
// пересоздания кода с тем же текстом пользователи смогут активировать его
// заново. Для мягкого отключения используется деактивация.
package promoremove

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/daryveda/gifts-entitlement/internal/http/response"
	"github.com/daryveda/gifts-entitlement/internal/lib/sl"
	"github.com/daryveda/gifts-entitlement/internal/storage"
)

// Handler управляет HTTP-запросами на удаление промокодов.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики удаления промокода.
type Service interface {
	Delete(ctx context.Context, promoID int64) error
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Удалить промокод
// @Description Удаляет промокод вместе с историей активаций.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param id path int true "ID промокода"
// @Success 200 {object} map[string]any "Промокод удален"
// @Failure 400 {object} response.ErrorResponse "Некорректный ID"
// @Failure 404 {object} response.ErrorResponse "Промокод не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/promocodes/{id} [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.promoremove"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	promoID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || promoID <= 0 {
		log.Error("failed to decode id from url", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode id from url"))
		return
	}

	err = h.service.Delete(r.Context(), promoID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		log.Error("promocode not found", sl.Err(err))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("promocode not found"))
		return
	case err != nil:
		log.Error("failed to delete promocode", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not delete promocode"))
		return
	}

	log.Info("promocode deleted", slog.Int64("promo_id", promoID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"deleted_id": promoID,
	}))
}
