package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/daryveda/gifts-entitlement/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type StoreMock struct{ mock.Mock }

func (m *StoreMock) GetUser(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *StoreMock) UpsertUserIfAbsent(ctx context.Context, id int64, username, firstName string, trialDays int) error {
	args := m.Called(ctx, id, username, firstName, trialDays)
	return args.Error(0)
}

func (m *StoreMock) UpdateBirthDate(ctx context.Context, id int64, birthDate string) error {
	args := m.Called(ctx, id, birthDate)
	return args.Error(0)
}

func (m *StoreMock) ExtendSubscription(ctx context.Context, id int64, subType string, days int) (time.Time, error) {
	args := m.Called(ctx, id, subType, days)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *StoreMock) RecordPayment(ctx context.Context, p models.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *StoreMock) ListUserPayments(ctx context.Context, userID int64) ([]*models.Payment, error) {
	args := m.Called(ctx, userID)
	payments, _ := args.Get(0).([]*models.Payment)
	return payments, args.Error(1)
}

func (m *StoreMock) CreatePromoCode(ctx context.Context, promo models.PromoCode) (int64, error) {
	args := m.Called(ctx, promo)
	return args.Get(0).(int64), args.Error(1)
}

func (m *StoreMock) GetPromoCodeByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	args := m.Called(ctx, code)
	promo, _ := args.Get(0).(*models.PromoCode)
	return promo, args.Error(1)
}

func (m *StoreMock) HasUserRedeemed(ctx context.Context, promoID, userID int64) (bool, error) {
	args := m.Called(ctx, promoID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *StoreMock) RedeemPromoCode(ctx context.Context, promoID, userID int64) error {
	args := m.Called(ctx, promoID, userID)
	return args.Error(0)
}

func (m *StoreMock) DeactivatePromoCode(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func (m *StoreMock) DeletePromoCode(ctx context.Context, promoID int64) error {
	args := m.Called(ctx, promoID)
	return args.Error(0)
}

func (m *StoreMock) ListPromoCodes(ctx context.Context) ([]*models.PromoCode, error) {
	args := m.Called(ctx)
	promos, _ := args.Get(0).([]*models.PromoCode)
	return promos, args.Error(1)
}

func (m *StoreMock) PromoCodeStats(ctx context.Context, code string) (*models.PromoCodeStats, error) {
	args := m.Called(ctx, code)
	stats, _ := args.Get(0).(*models.PromoCodeStats)
	return stats, args.Error(1)
}

func (m *StoreMock) ListUsers(ctx context.Context, limit int) ([]*models.User, error) {
	args := m.Called(ctx, limit)
	users, _ := args.Get(0).([]*models.User)
	return users, args.Error(1)
}

func (m *StoreMock) SubscriptionStats(ctx context.Context) ([]models.SubscriptionStat, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).([]models.SubscriptionStat)
	return stats, args.Error(1)
}

func (m *StoreMock) IsAdmin(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *StoreMock) SetAdmin(ctx context.Context, id int64, isAdmin bool) error {
	args := m.Called(ctx, id, isAdmin)
	return args.Error(0)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Get(key string, result any) (bool, error) {
	args := m.Called(key, result)
	return args.Bool(0), args.Error(1)
}

func (m *CacheMock) Set(key string, value any, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *CacheMock) Invalidate(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

type ExtenderMock struct{ mock.Mock }

func (m *ExtenderMock) Extend(ctx context.Context, userID int64, subType string, days int) (time.Time, error) {
	args := m.Called(ctx, userID, subType, days)
	return args.Get(0).(time.Time), args.Error(1)
}
