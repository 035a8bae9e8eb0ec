// Package birthdate реализует HTTP-обработчик обновления даты рождения пользователя.
package birthdate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/daryveda/gifts-entitlement/internal/http/response"
	"github.com/daryveda/gifts-entitlement/internal/lib/sl"
	"github.com/daryveda/gifts-entitlement/internal/models"
	"github.com/daryveda/gifts-entitlement/internal/services"
	"github.com/daryveda/gifts-entitlement/internal/storage"
)

// Handler управляет HTTP-запросами на обновление даты рождения.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики обновления профиля пользователя.
type Service interface {
	UpdateBirthDate(ctx context.Context, req models.DummyBirthDate) error
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
// @Summary Обновить дату рождения
// @Description Сохраняет дату рождения пользователя в формате ДД.ММ.ГГГГ.
// @Tags Users
// @Accept  json
// @Produce  json
// @Param request body models.DummyBirthDate true "Дата рождения"
// @Success 200 {object} response.Response "Дата рождения сохранена"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или формат даты"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /users/birthdate [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.user.birthdate"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyBirthDate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	err := h.service.UpdateBirthDate(r.Context(), req)
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		log.Error("invalid birth date format", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("birth date must be in DD.MM.YYYY format"))
		return
	case errors.Is(err, storage.ErrNotFound):
		log.Error("user not found", sl.Err(err))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case err != nil:
		log.Error("failed to update birth date", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not update birth date"))
		return
	}

	log.Info("birth date updated", slog.Int64("user_id", req.UserID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"user_id": req.UserID,
	}))
}
