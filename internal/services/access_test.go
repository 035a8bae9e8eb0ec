package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/daryveda/gifts-entitlement/internal/models"
	"github.com/daryveda/gifts-entitlement/internal/storage"
)

func TestSubscriptionStatus_AdminShortCircuits(t *testing.T) {
	repo := new(StoreMock)
	cache := new(CacheMock)
	svc := NewAccessService(repo, cache, discardLogger())

	repo.On("IsAdmin", mock.Anything, int64(1)).Return(true, nil)

	sub, err := svc.SubscriptionStatus(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, sub.Active)
	assert.Equal(t, LevelOrden, sub.Level)
	assert.Equal(t, "admin", sub.Type)
	// Журнал не читается вовсе: у администратора доступ безусловный.
	repo.AssertNotCalled(t, "GetUser")
}

func TestSubscriptionStatus_ActiveUser(t *testing.T) {
	repo := new(StoreMock)
	cache := new(CacheMock)
	svc := NewAccessService(repo, cache, discardLogger())

	end := time.Now().AddDate(0, 0, 10)
	repo.On("IsAdmin", mock.Anything, int64(100)).Return(false, nil)
	cache.On("Get", "subscription:100", mock.Anything).Return(false, nil)
	repo.On("GetUser", mock.Anything, int64(100)).Return(&models.User{
		ID:                  100,
		SubscriptionType:    SubTypeOrdenMonth,
		SubscriptionEndDate: &end,
	}, nil)
	cache.On("Set", "subscription:100", mock.Anything, accessCacheTTL).Return(nil)

	sub, err := svc.SubscriptionStatus(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, sub.Active)
	assert.Equal(t, LevelOrden, sub.Level)
	require.NotNil(t, sub.EndDate)
	assert.Equal(t, end, *sub.EndDate)
}

func TestSubscriptionStatus_ExpiredUser(t *testing.T) {
	repo := new(StoreMock)
	cache := new(CacheMock)
	svc := NewAccessService(repo, cache, discardLogger())

	end := time.Now().AddDate(0, 0, -1)
	repo.On("IsAdmin", mock.Anything, int64(100)).Return(false, nil)
	cache.On("Get", "subscription:100", mock.Anything).Return(false, nil)
	repo.On("GetUser", mock.Anything, int64(100)).Return(&models.User{
		ID:                  100,
		SubscriptionType:    SubTypeProMonth,
		SubscriptionEndDate: &end,
	}, nil)
	cache.On("Set", "subscription:100", mock.Anything, accessCacheTTL).Return(nil)

	sub, err := svc.SubscriptionStatus(context.Background(), 100)
	require.NoError(t, err)
	assert.False(t, sub.Active)
	assert.Equal(t, LevelTrial, sub.Level)
	assert.Nil(t, sub.EndDate)
}

func TestSubscriptionStatus_UnknownUser(t *testing.T) {
	repo := new(StoreMock)
	cache := new(CacheMock)
	svc := NewAccessService(repo, cache, discardLogger())

	repo.On("IsAdmin", mock.Anything, int64(999)).Return(false, nil)
	cache.On("Get", "subscription:999", mock.Anything).Return(false, nil)
	repo.On("GetUser", mock.Anything, int64(999)).Return(nil, storage.ErrNotFound)

	sub, err := svc.SubscriptionStatus(context.Background(), 999)
	require.NoError(t, err)
	assert.False(t, sub.Active)
}

func TestSubscriptionStatus_CacheHit(t *testing.T) {
	repo := new(StoreMock)
	cache := new(CacheMock)
	svc := NewAccessService(repo, cache, discardLogger())

	repo.On("IsAdmin", mock.Anything, int64(100)).Return(false, nil)
	cache.On("Get", "subscription:100", mock.Anything).Run(func(args mock.Arguments) {
		sub := args.Get(1).(*models.Subscription)
		sub.Active = true
		sub.Level = LevelPro
	}).Return(true, nil)

	sub, err := svc.SubscriptionStatus(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, sub.Active)
	assert.Equal(t, LevelPro, sub.Level)
	repo.AssertNotCalled(t, "GetUser")
}

func TestCheckAccess_TierHierarchy(t *testing.T) {
	active := func(level string) *models.Subscription {
		return &models.Subscription{Active: true, Level: level}
	}

	// trial и pro равноправны, orden выше обоих.
	assert.True(t, CheckAccess(active(LevelTrial), LevelPro))
	assert.True(t, CheckAccess(active(LevelPro), LevelTrial))
	assert.True(t, CheckAccess(active(LevelPro), LevelPro))
	assert.False(t, CheckAccess(active(LevelTrial), LevelOrden))
	assert.False(t, CheckAccess(active(LevelPro), LevelOrden))
	assert.True(t, CheckAccess(active(LevelOrden), LevelOrden))
	assert.True(t, CheckAccess(active(LevelOrden), LevelPro))

	// Неактивная подписка не даёт доступа независимо от уровня.
	assert.False(t, CheckAccess(&models.Subscription{Active: false, Level: LevelOrden}, LevelPro))
	assert.False(t, CheckAccess(nil, LevelPro))
}

func TestLevelForType(t *testing.T) {
	assert.Equal(t, LevelTrial, LevelForType(SubTypeTrial))
	assert.Equal(t, LevelTrial, LevelForType(SubTypePremiumTest))
	assert.Equal(t, LevelPro, LevelForType(SubTypeProMonth))
	assert.Equal(t, LevelPro, LevelForType(SubTypeProYear))
	assert.Equal(t, LevelOrden, LevelForType(SubTypeOrdenMonth))
	assert.Equal(t, LevelOrden, LevelForType(SubTypeOrdenYear))
	assert.Equal(t, LevelTrial, LevelForType("unknown"))
}
