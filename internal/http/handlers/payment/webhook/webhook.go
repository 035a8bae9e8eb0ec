// Package webhook реализует HTTP-обработчик уведомлений платёжного провайдера.
//
// Handler проверяет HMAC-подпись тела запроса, разбирает событие платежа и
// передаёт подтверждённый платёж в сервис журнала подписок: платёж
// записывается и подписка продлевается на срок оплаченного тарифа.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/daryveda/gifts-entitlement/internal/http/response"
	"github.com/daryveda/gifts-entitlement/internal/lib/sl"
	"github.com/daryveda/gifts-entitlement/internal/models"
	"github.com/daryveda/gifts-entitlement/internal/services"
)

// Service описывает интерфейс бизнес-логики обработки подтверждённого платежа.
type Service interface {
	PaymentConfirmed(ctx context.Context, event models.PaymentEvent) (time.Time, error)
}

// Handler управляет HTTP-запросами от платёжного провайдера.
type Handler struct {
	log           *slog.Logger
	service       Service
	validate      *validator.Validate
	webhookSecret string // Секрет для проверки подписи
}

// New создает новый Handler с переданными логгером, сервисом и секретом подписи.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		validate:      validator.New(),
		webhookSecret: secret,
	}
}

// Payload описывает тело уведомления платёжного провайдера.
type Payload struct {
	Event  string              `json:"event"`
	Object models.PaymentEvent `json:"object"`
}

// Проверка подписи webhook (X-Api-Signature)
func (h *Handler) verifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expectedSig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expectedSig), []byte(signature))
}

// ServeHTTP godoc
// @Summary Принять уведомление о платеже
// @Description Принимает подписанное уведомление платёжного провайдера. Событие payment.succeeded записывает платёж и продлевает подписку.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param X-Api-Signature header string true "HMAC-SHA256 подпись тела запроса"
// @Param request body Payload true "Событие платежа"
// @Success 200 {object} map[string]any "Платёж обработан"
// @Failure 400 {object} response.ErrorResponse "Некорректное тело запроса"
// @Failure 401 {object} response.ErrorResponse "Неверная подпись"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации события"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	defer r.Body.Close()

	signature := r.Header.Get("X-Api-Signature")
	if signature == "" || !h.verifySignature(h.webhookSecret, body, signature) {
		log.Error("invalid or missing webhook signature")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid or missing webhook signature"))
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	const paymentSucceeded = "payment.succeeded"

	if !strings.EqualFold(payload.Event, paymentSucceeded) {
		log.Info("ignored webhook event", slog.String("event", payload.Event))
		w.WriteHeader(http.StatusOK)
		render.JSON(w, r, response.StatusOKWithData(map[string]any{
			"event": payload.Event,
		}))
		return
	}

	if err := h.validate.Struct(payload.Object); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	endDate, err := h.service.PaymentConfirmed(r.Context(), payload.Object)
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		log.Error("unknown subscription type in payment", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("unknown subscription type"))
		return
	case err != nil:
		log.Error("failed to process webhook event", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not process payment"))
		return
	}

	log.Info("webhook processed successfully",
		slog.String("event", payload.Event),
		slog.Int64("user_id", payload.Object.UserID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"subscription_end_date": endDate,
	}))
}
