// Package redeem реализует HTTP-обработчик активации промокода пользователем.
//
// Handler принимает JSON-запрос с кодом, валидирует его, вызывает бизнес-логику
// активации и возвращает результат применения промокода. Повторная активация
// того же кода одним пользователем и исчерпание лимита использований
// отображаются в отдельные HTTP-статусы.
package redeem

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

// Handler управляет HTTP-запросами на активацию промокодов.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики активации промокода.
type Service interface {
	Redeem(ctx context.Context, userID int64, code string) (*services.RedeemResult, error)
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
// @Summary Активировать промокод
// @Description Применяет промокод к пользователю. Каждый пользователь может активировать код только один раз.
// @Tags Promocodes
// @Accept  json
// @Produce  json
// @Param request body models.DummyRedeem true "Код и пользователь"
// @Success 200 {object} map[string]any "Результат применения промокода"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Промокод не найден или отключен"
// @Failure 409 {object} response.ErrorResponse "Промокод уже активирован этим пользователем"
// @Failure 410 {object} response.ErrorResponse "Лимит использований исчерпан"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /promocodes/redeem [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.promo.redeem"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyRedeem
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

	result, err := h.service.Redeem(r.Context(), req.UserID, req.Code)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		log.Error("promocode not found", sl.Err(err))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("promocode not found or inactive"))
		return
	case errors.Is(err, storage.ErrAlreadyRedeemed):
		log.Error("promocode already redeemed", sl.Err(err))
		w.WriteHeader(http.StatusConflict)
		render.JSON(w, r, response.Error("promocode already redeemed by this user"))
		return
	case errors.Is(err, storage.ErrExhausted):
		log.Error("promocode exhausted", sl.Err(err))
		w.WriteHeader(http.StatusGone)
		render.JSON(w, r, response.Error("promocode usage limit reached"))
		return
	case err != nil:
		log.Error("failed to redeem promocode", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not redeem promocode"))
		return
	}

	log.Info("promocode redeemed",
		slog.Int64("user_id", req.UserID),
		slog.String("promo_type", result.PromoType))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"result": result,
	}))
}
