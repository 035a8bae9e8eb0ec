// Package promocreate реализует HTTP-обработчик создания промокода администратором.
//
// Handler принимает JSON-запрос с параметрами промокода, валидирует их,
// извлекает идентификатор администратора из контекста и возвращает созданный
// промокод со сгенерированным кодом.
package promocreate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/daryveda/gifts-entitlement/internal/http/middlewarectx"
	"github.com/daryveda/gifts-entitlement/internal/http/response"
	"github.com/daryveda/gifts-entitlement/internal/lib/sl"
	"github.com/daryveda/gifts-entitlement/internal/models"
	"github.com/daryveda/gifts-entitlement/internal/services"
)

// Handler управляет HTTP-запросами на создание промокодов.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики создания промокода.
type Service interface {
	Create(ctx context.Context, createdBy int64, req models.DummyCreatePromo) (*models.PromoCode, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать промокод
// @Description Создает промокод со сгенерированным кодом. Тип discount требует процент скидки, тип subscription — срок и тариф.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body models.DummyCreatePromo true "Параметры промокода"
// @Success 200 {object} map[string]any "Созданный промокод"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или параметры"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/promocodes [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.promocreate"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyCreatePromo
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	log.Info("request body decoded", slog.Any("request", req))

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	adminID, ok := r.Context().Value(middlewarectx.UserID).(int64)
	if !ok || adminID == 0 {
		log.Error("admin identification missing in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	promo, err := h.service.Create(r.Context(), adminID, req)
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		log.Error("invalid promocode parameters", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid promocode parameters"))
		return
	case err != nil:
		log.Error("failed to create promocode", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not create promocode"))
		return
	}

	log.Info("promocode created",
		slog.String("code", promo.Code),
		slog.String("type", promo.Type))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"promocode": promo,
	}))
}
