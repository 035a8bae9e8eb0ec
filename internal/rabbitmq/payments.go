package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator"

	"github.com/daryveda/gifts-entitlement/internal/lib/sl"
	"github.com/daryveda/gifts-entitlement/internal/models"
	"github.com/daryveda/gifts-entitlement/internal/services"
)

// LedgerService описывает интерфейс бизнес-логики обработки подтверждённого платежа.
type LedgerService interface {
	PaymentConfirmed(ctx context.Context, event models.PaymentEvent) (time.Time, error)
}

// PaymentHandler разбирает события очереди payments.confirmed и передает
// их сервису журнала подписок.
type PaymentHandler struct {
	log      *slog.Logger
	service  LedgerService
	validate *validator.Validate
}

// NewPaymentHandler создает новый PaymentHandler.
func NewPaymentHandler(log *slog.Logger, service LedgerService) *PaymentHandler {
	return &PaymentHandler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// HandleMessage обрабатывает одно сообщение очереди.
// Нечитаемые и невалидные события подтверждаются и отбрасываются,
// чтобы не зациклить очередь; ошибка хранилища возвращает сообщение
// на повторную доставку.
func (h *PaymentHandler) HandleMessage(body []byte) error {
	const op = "rabbitmq.PaymentHandler.HandleMessage"
	log := h.log.With(slog.String("op", op))

	var event models.PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Error("failed to unmarshal payment event, dropping", sl.Err(err))
		return nil
	}

	if err := h.validate.Struct(event); err != nil {
		log.Error("invalid payment event, dropping", sl.Err(err))
		return nil
	}

	endDate, err := h.service.PaymentConfirmed(context.Background(), event)
	if err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			log.Error("unknown subscription type in payment event, dropping", sl.Err(err))
			return nil
		}
		log.Error("failed to process payment event", sl.Err(err))
		return err
	}

	log.Info("payment event processed",
		slog.Int64("user_id", event.UserID),
		slog.Time("subscription_end_date", endDate))
	return nil
}
