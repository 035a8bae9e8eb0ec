package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/daryveda/gifts-entitlement/internal/models"
	"github.com/daryveda/gifts-entitlement/internal/storage"
)

// accessCacheTTL ограничивает время жизни кэшированной сводки
// подписки. Продление инвалидирует кэш явно, TTL страхует от
// рассинхронизации при записи мимо сервиса.
const accessCacheTTL = 5 * time.Minute

// AccessRepository определяет методы хранилища для проверки доступа.
type AccessRepository interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	IsAdmin(ctx context.Context, id int64) (bool, error)
}

// AccessService вычисляет права доступа пользователя из состояния
// подписки. Вычисление детерминировано: один и тот же ledger-стейт
// всегда даёт один и тот же ответ.
type AccessService struct {
	repo  AccessRepository
	cache Cache
	log   *slog.Logger
}

// NewAccessService создает новый экземпляр AccessService.
func NewAccessService(repo AccessRepository, cache Cache, log *slog.Logger) *AccessService {
	return &AccessService{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// SubscriptionStatus возвращает сводку подписки пользователя.
// Администратор всегда получает активный статус уровня orden,
// независимо от состояния журнала. Сводки обычных пользователей
// кэшируются.
func (s *AccessService) SubscriptionStatus(ctx context.Context, userID int64) (*models.Subscription, error) {
	isAdmin, err := s.repo.IsAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if isAdmin {
		return &models.Subscription{
			Active: true,
			Type:   "admin",
			Level:  LevelOrden,
		}, nil
	}

	key := subscriptionCacheKey(userID)
	var cached models.Subscription
	if found, err := s.cache.Get(key, &cached); err == nil && found {
		return &cached, nil
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &models.Subscription{Active: false, Level: LevelTrial}, nil
		}
		return nil, err
	}

	sub := &models.Subscription{
		Type:  user.SubscriptionType,
		Level: LevelTrial,
	}
	if user.SubscriptionEndDate != nil && user.SubscriptionEndDate.After(time.Now()) {
		sub.Active = true
		sub.Level = LevelForType(user.SubscriptionType)
		sub.EndDate = user.SubscriptionEndDate
	}

	if err := s.cache.Set(key, sub, accessCacheTTL); err != nil {
		s.log.Warn("failed to cache subscription status",
			slog.Int64("user_id", userID), slog.String("error", err.Error()))
	}
	return sub, nil
}

// CheckAccess проверяет, достаточно ли подписки для функции
// требуемого уровня: подписка должна быть активна, а ранг её уровня —
// не ниже требуемого. Пробный период даёт те же права, что и pro.
func CheckAccess(sub *models.Subscription, requiredLevel string) bool {
	if sub == nil || !sub.Active {
		return false
	}
	return levelRank[sub.Level] >= levelRank[requiredLevel]
}

// IsAdmin сообщает, отмечен ли пользователь администратором.
// Неизвестный пользователь администратором не является.
func (s *AccessService) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	return s.repo.IsAdmin(ctx, userID)
}

// HasFeatureAccess — удобная обёртка: сводка плюс проверка уровня.
func (s *AccessService) HasFeatureAccess(ctx context.Context, userID int64, requiredLevel string) (bool, error) {
	sub, err := s.SubscriptionStatus(ctx, userID)
	if err != nil {
		return false, err
	}
	return CheckAccess(sub, requiredLevel), nil
}
