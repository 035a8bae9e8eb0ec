package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/daryveda/gifts-entitlement/internal/models"
	"github.com/daryveda/gifts-entitlement/internal/storage"
)

// codeAlphabet исключает визуально неоднозначные символы: буквы O и I,
// цифры 0 и 1.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// codeLength — длина генерируемого промокода.
const codeLength = 12

// createAttempts ограничивает число перегенераций кода при
// столкновении с уже существующим.
const createAttempts = 5

// PromoRepository определяет методы хранилища для промокодов.
type PromoRepository interface {
	CreatePromoCode(ctx context.Context, promo models.PromoCode) (int64, error)
	GetPromoCodeByCode(ctx context.Context, code string) (*models.PromoCode, error)
	HasUserRedeemed(ctx context.Context, promoID, userID int64) (bool, error)
	RedeemPromoCode(ctx context.Context, promoID, userID int64) error
	DeactivatePromoCode(ctx context.Context, code string) error
	DeletePromoCode(ctx context.Context, promoID int64) error
	ListPromoCodes(ctx context.Context) ([]*models.PromoCode, error)
	PromoCodeStats(ctx context.Context, code string) (*models.PromoCodeStats, error)
}

// SubscriptionExtender продлевает подписку пользователя; реализуется
// сервисом журнала подписок.
type SubscriptionExtender interface {
	Extend(ctx context.Context, userID int64, subType string, days int) (time.Time, error)
}

// RedeemResult описывает эффект успешной активации промокода.
type RedeemResult struct {
	PromoType       string     `json:"promo_type"`
	DiscountPercent int        `json:"discount_percent,omitempty"`
	Days            int        `json:"days,omitempty"`
	NewEndDate      *time.Time `json:"new_end_date,omitempty"`
}

// PromoService реализует создание и активацию промокодов.
type PromoService struct {
	repo   PromoRepository
	ledger SubscriptionExtender
	log    *slog.Logger
}

// NewPromoService создает новый экземпляр PromoService.
func NewPromoService(repo PromoRepository, ledger SubscriptionExtender, log *slog.Logger) *PromoService {
	return &PromoService{
		repo:   repo,
		ledger: ledger,
		log:    log,
	}
}

// GenerateCode возвращает случайный код из алфавита без визуально
// неоднозначных символов.
func GenerateCode() (string, error) {
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

func validateCreate(req models.DummyCreatePromo) error {
	switch req.Type {
	case models.PromoTypeDiscount:
		if req.DiscountPercent < 1 || req.DiscountPercent > 100 {
			return fmt.Errorf("%w: discount percent must be in 1..100, got %d", ErrInvalidInput, req.DiscountPercent)
		}
	case models.PromoTypeSubscription:
		if req.SubscriptionDays <= 0 {
			return fmt.Errorf("%w: subscription days must be positive, got %d", ErrInvalidInput, req.SubscriptionDays)
		}
		if req.SubscriptionType != LevelPro && req.SubscriptionType != LevelOrden {
			return fmt.Errorf("%w: subscription type must be pro or orden, got %q", ErrInvalidInput, req.SubscriptionType)
		}
	default:
		return fmt.Errorf("%w: unknown promo type %q", ErrInvalidInput, req.Type)
	}
	if req.MaxUses < 0 {
		return fmt.Errorf("%w: max uses must not be negative, got %d", ErrInvalidInput, req.MaxUses)
	}
	return nil
}

// Create генерирует код и сохраняет новый промокод. При столкновении
// со случайно совпавшим кодом генерация повторяется.
func (s *PromoService) Create(ctx context.Context, createdBy int64, req models.DummyCreatePromo) (*models.PromoCode, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	promo := models.PromoCode{
		Type:      req.Type,
		CreatedBy: createdBy,
		IsActive:  true,
	}
	switch req.Type {
	case models.PromoTypeDiscount:
		promo.DiscountPercent = &req.DiscountPercent
	case models.PromoTypeSubscription:
		promo.SubscriptionDays = &req.SubscriptionDays
		promo.SubscriptionType = &req.SubscriptionType
	}
	if req.MaxUses > 0 {
		promo.MaxUses = &req.MaxUses
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			return nil, err
		}
		promo.Code = code

		id, err := s.repo.CreatePromoCode(ctx, promo)
		if err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				continue
			}
			return nil, err
		}
		promo.ID = id
		promo.CreatedDate = time.Now().UTC()

		s.log.Info("promocode created",
			slog.Int64("promo_id", id),
			slog.String("type", promo.Type),
			slog.Int64("created_by", createdBy))
		return &promo, nil
	}
	return nil, fmt.Errorf("create promocode: code collision not resolved after %d attempts", createAttempts)
}

// concreteSubType выбирает тип подписки по уровню и длительности
// промокода: от года — годовая, иначе месячная.
func concreteSubType(level string, days int) string {
	if level == LevelOrden {
		if days >= 365 {
			return SubTypeOrdenYear
		}
		return SubTypeOrdenMonth
	}
	if days >= 365 {
		return SubTypeProYear
	}
	return SubTypeProMonth
}

// Redeem активирует промокод для пользователя и применяет его эффект.
// Предварительная проверка повторной активации — только быстрый отказ:
// авторитетным сигналом остаётся ограничение уникальности хранилища,
// поэтому гонка двух одновременных активаций разрешается корректно и
// при нескольких экземплярах сервиса.
func (s *PromoService) Redeem(ctx context.Context, userID int64, code string) (*RedeemResult, error) {
	promo, err := s.repo.GetPromoCodeByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	redeemed, err := s.repo.HasUserRedeemed(ctx, promo.ID, userID)
	if err != nil {
		return nil, err
	}
	if redeemed {
		return nil, storage.ErrAlreadyRedeemed
	}

	if err := s.repo.RedeemPromoCode(ctx, promo.ID, userID); err != nil {
		return nil, err
	}

	result := &RedeemResult{PromoType: promo.Type}
	switch promo.Type {
	case models.PromoTypeDiscount:
		if promo.DiscountPercent != nil {
			result.DiscountPercent = *promo.DiscountPercent
		}
	case models.PromoTypeSubscription:
		days := 0
		if promo.SubscriptionDays != nil {
			days = *promo.SubscriptionDays
		}
		level := LevelPro
		if promo.SubscriptionType != nil {
			level = *promo.SubscriptionType
		}
		newEnd, err := s.ledger.Extend(ctx, userID, concreteSubType(level, days), days)
		if err != nil {
			return nil, err
		}
		result.Days = days
		result.NewEndDate = &newEnd
	}

	s.log.Info("promocode redeemed",
		slog.Int64("promo_id", promo.ID),
		slog.Int64("user_id", userID),
		slog.String("type", promo.Type))
	return result, nil
}

// Deactivate выключает промокод. Операция терминальна: обратного
// включения нет, история использований сохраняется.
func (s *PromoService) Deactivate(ctx context.Context, code string) error {
	if err := s.repo.DeactivatePromoCode(ctx, code); err != nil {
		return err
	}
	s.log.Info("promocode deactivated", slog.String("code", code))
	return nil
}

// Delete безвозвратно удаляет промокод вместе с историей использований.
func (s *PromoService) Delete(ctx context.Context, promoID int64) error {
	if err := s.repo.DeletePromoCode(ctx, promoID); err != nil {
		return err
	}
	s.log.Info("promocode deleted", slog.Int64("promo_id", promoID))
	return nil
}

// List возвращает все промокоды.
func (s *PromoService) List(ctx context.Context) ([]*models.PromoCode, error) {
	return s.repo.ListPromoCodes(ctx)
}

// Stats возвращает промокод с историей использований.
func (s *PromoService) Stats(ctx context.Context, code string) (*models.PromoCodeStats, error) {
	return s.repo.PromoCodeStats(ctx, code)
}
