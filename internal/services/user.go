package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/daryveda/gifts-entitlement/internal/models"
)

// birthDateLayout — формат даты рождения, как её вводит пользователь.
const birthDateLayout = "02.01.2006"

// UserRepository определяет методы хранилища для учётных записей.
type UserRepository interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UpsertUserIfAbsent(ctx context.Context, id int64, username, firstName string, trialDays int) error
	UpdateBirthDate(ctx context.Context, id int64, birthDate string) error
	ListUsers(ctx context.Context, limit int) ([]*models.User, error)
	SubscriptionStats(ctx context.Context) ([]models.SubscriptionStat, error)
	SetAdmin(ctx context.Context, id int64, isAdmin bool) error
}

// UserService реализует регистрацию и администрирование пользователей.
type UserService struct {
	repo      UserRepository
	trialDays int
	log       *slog.Logger
}

// NewUserService создает новый экземпляр UserService.
func NewUserService(repo UserRepository, trialDays int, log *slog.Logger) *UserService {
	return &UserService{
		repo:      repo,
		trialDays: trialDays,
		log:       log,
	}
}

// Register регистрирует пользователя и выдаёт пробный период.
// Повторный вызов для уже известного пользователя ничего не меняет:
// дата регистрации и пробный период выдаются один раз.
func (s *UserService) Register(ctx context.Context, req models.DummyRegisterUser) (*models.User, error) {
	if err := s.repo.UpsertUserIfAbsent(ctx, req.UserID, req.Username, req.FirstName, s.trialDays); err != nil {
		return nil, err
	}
	user, err := s.repo.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	s.log.Info("user registered",
		slog.Int64("user_id", req.UserID),
		slog.String("subscription_type", user.SubscriptionType))
	return user, nil
}

// UpdateBirthDate сохраняет дату рождения пользователя для
// нумерологических расчётов.
func (s *UserService) UpdateBirthDate(ctx context.Context, req models.DummyBirthDate) error {
	if _, err := time.Parse(birthDateLayout, req.BirthDate); err != nil {
		return fmt.Errorf("%w: birth date must be in DD.MM.YYYY format", ErrInvalidInput)
	}
	return s.repo.UpdateBirthDate(ctx, req.UserID, req.BirthDate)
}

// Get возвращает пользователя по идентификатору.
func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetUser(ctx, id)
}

// List возвращает последних зарегистрированных пользователей.
func (s *UserService) List(ctx context.Context, limit int) ([]*models.User, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListUsers(ctx, limit)
}

// Stats возвращает агрегированную статистику по подпискам.
func (s *UserService) Stats(ctx context.Context) ([]models.SubscriptionStat, error) {
	return s.repo.SubscriptionStats(ctx)
}

// BootstrapAdmins регистрирует перечисленных в конфигурации
// администраторов и выставляет им флаг. Вызывается при старте сервиса.
func (s *UserService) BootstrapAdmins(ctx context.Context, adminIDs []int64) error {
	for _, id := range adminIDs {
		if err := s.repo.UpsertUserIfAbsent(ctx, id, "", "", s.trialDays); err != nil {
			return fmt.Errorf("bootstrap admin %d: %w", id, err)
		}
		if err := s.repo.SetAdmin(ctx, id, true); err != nil {
			return fmt.Errorf("bootstrap admin %d: %w", id, err)
		}
		s.log.Info("admin bootstrapped", slog.Int64("user_id", id))
	}
	return nil
}
