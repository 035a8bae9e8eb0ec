package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/daryveda/gifts-entitlement/internal/models"
)

// LedgerRepository определяет методы хранилища для журнала подписок.
type LedgerRepository interface {
	// ExtendSubscription атомарно продлевает подписку и возвращает
	// новую дату окончания.
	ExtendSubscription(ctx context.Context, id int64, subType string, days int) (time.Time, error)
	// RecordPayment добавляет запись в журнал платежей.
	RecordPayment(ctx context.Context, p models.Payment) error
	// ListUserPayments возвращает историю платежей пользователя.
	ListUserPayments(ctx context.Context, userID int64) ([]*models.Payment, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(key string, value any, expiration time.Duration) error
	// Invalidate удаляет значение из кеша по ключу.
	Invalidate(key string) error
}

// LedgerService реализует журнал подписок: продление за оплату и
// обработку подтверждений платежей. Арифметику дат сервис не делает
// сам — она выполняется атомарно в хранилище, здесь только валидация
// и учёт.
type LedgerService struct {
	repo  LedgerRepository
	cache Cache
	log   *slog.Logger
}

// NewLedgerService создает новый экземпляр LedgerService.
func NewLedgerService(repo LedgerRepository, cache Cache, log *slog.Logger) *LedgerService {
	return &LedgerService{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

func subscriptionCacheKey(userID int64) string {
	return fmt.Sprintf("subscription:%d", userID)
}

// Extend продлевает подписку пользователя на days дней и переводит её
// на тип subType. Если текущая подписка ещё активна, дни добавляются
// к её окончанию, иначе отсчёт идёт от текущего момента.
func (s *LedgerService) Extend(ctx context.Context, userID int64, subType string, days int) (time.Time, error) {
	if days <= 0 {
		return time.Time{}, fmt.Errorf("%w: days must be positive, got %d", ErrInvalidInput, days)
	}
	if _, ok := subscriptionLevels[subType]; !ok {
		return time.Time{}, fmt.Errorf("%w: unknown subscription type %q", ErrInvalidInput, subType)
	}

	newEnd, err := s.repo.ExtendSubscription(ctx, userID, subType, days)
	if err != nil {
		return time.Time{}, err
	}

	if err := s.cache.Invalidate(subscriptionCacheKey(userID)); err != nil {
		s.log.Warn("failed to invalidate subscription cache",
			slog.Int64("user_id", userID), slog.String("error", err.Error()))
	}

	s.log.Info("subscription extended",
		slog.Int64("user_id", userID),
		slog.String("subscription_type", subType),
		slog.Int("days", days),
		slog.Time("new_end_date", newEnd))
	return newEnd, nil
}

// PaymentConfirmed обрабатывает подтверждение оплаты: записывает
// платёж в журнал и продлевает подписку на срок оплаченного типа.
// У события нет ключа идемпотентности, повторная доставка приводит
// к повторному продлению.
func (s *LedgerService) PaymentConfirmed(ctx context.Context, event models.PaymentEvent) (time.Time, error) {
	days, ok := SubscriptionTypeDays(event.SubscriptionType)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unknown subscription type %q", ErrInvalidInput, event.SubscriptionType)
	}

	// Шлюз не всегда передает идентификатор транзакции, для трейсинга
	// в логах назначаем свой.
	if event.ExternalTxnID == "" {
		event.ExternalTxnID = uuid.NewString()
	}

	if err := s.repo.RecordPayment(ctx, models.Payment{
		UserID:           event.UserID,
		Amount:           event.Amount,
		Currency:         event.Currency,
		SubscriptionType: event.SubscriptionType,
		Status:           "completed",
	}); err != nil {
		return time.Time{}, err
	}

	newEnd, err := s.Extend(ctx, event.UserID, event.SubscriptionType, days)
	if err != nil {
		return time.Time{}, err
	}

	s.log.Info("payment processed",
		slog.Int64("user_id", event.UserID),
		slog.Int("amount", event.Amount),
		slog.String("currency", event.Currency),
		slog.String("external_txn_id", event.ExternalTxnID))
	return newEnd, nil
}

// ListPayments возвращает историю платежей пользователя.
func (s *LedgerService) ListPayments(ctx context.Context, userID int64) ([]*models.Payment, error) {
	return s.repo.ListUserPayments(ctx, userID)
}
