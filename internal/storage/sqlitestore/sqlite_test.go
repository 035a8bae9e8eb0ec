package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryveda/gifts-entitlement/internal/models"
	"github.com/daryveda/gifts-entitlement/internal/storage"
)

func setupStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func intPtr(v int) *int {
	return &v
}

func strPtr(v string) *string {
	return &v
}

func TestUpsertUserIfAbsent_Idempotent(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUserIfAbsent(ctx, 100, "alice", "Alice", 7))
	first, err := s.GetUser(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, first.SubscriptionEndDate)
	assert.Equal(t, "trial", first.SubscriptionType)

	// Повторная регистрация не должна сбрасывать пробный период.
	require.NoError(t, s.UpsertUserIfAbsent(ctx, 100, "alice-new", "Alice", 7))
	second, err := s.GetUser(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, first.RegistrationDate, second.RegistrationDate)
	assert.Equal(t, *first.SubscriptionEndDate, *second.SubscriptionEndDate)
	assert.Equal(t, "alice", second.Username)
}

func TestGetUser_NotFound(t *testing.T) {
	s := setupStorage(t)

	_, err := s.GetUser(context.Background(), 999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExtendSubscription_StacksOnActive(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUserIfAbsent(ctx, 100, "alice", "Alice", 7))

	first, err := s.ExtendSubscription(ctx, 100, "pro_month", 30)
	require.NoError(t, err)
	second, err := s.ExtendSubscription(ctx, 100, "pro_month", 30)
	require.NoError(t, err)

	// Продление активной подписки продолжает текущую дату окончания,
	// а не начинает отсчёт заново. Остаток пробного периода тоже
	// входит в сумму.
	assert.Equal(t, first.AddDate(0, 0, 30), second)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 7+30+30), second, time.Minute)
}

func TestExtendSubscription_ExpiredStartsFromNow(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUserIfAbsent(ctx, 100, "alice", "Alice", 7))
	past := time.Now().UTC().AddDate(0, 0, -10).Format(timeLayout)
	_, err := s.DB.ExecContext(ctx,
		`UPDATE users SET subscription_end_date = ? WHERE user_id = 100`, past)
	require.NoError(t, err)

	newEnd, err := s.ExtendSubscription(ctx, 100, "pro_month", 30)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 30), newEnd, time.Minute)
}

func TestExtendSubscription_UnknownUser(t *testing.T) {
	s := setupStorage(t)

	_, err := s.ExtendSubscription(context.Background(), 999, "pro_month", 30)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreatePromoCode_DuplicateCode(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	promo := models.PromoCode{
		Code:             "GIFT2026WXYZ",
		Type:             models.PromoTypeSubscription,
		SubscriptionDays: intPtr(30),
		SubscriptionType: strPtr("pro"),
		CreatedBy:        1,
	}
	_, err := s.CreatePromoCode(ctx, promo)
	require.NoError(t, err)

	_, err = s.CreatePromoCode(ctx, promo)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestRedeemPromoCode_AtMostOncePerUser(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUserIfAbsent(ctx, 100, "alice", "Alice", 7))
	promoID, err := s.CreatePromoCode(ctx, models.PromoCode{
		Code:             "GIFT2026WXYZ",
		Type:             models.PromoTypeSubscription,
		SubscriptionDays: intPtr(30),
		SubscriptionType: strPtr("pro"),
		CreatedBy:        1,
	})
	require.NoError(t, err)

	require.NoError(t, s.RedeemPromoCode(ctx, promoID, 100))
	err = s.RedeemPromoCode(ctx, promoID, 100)
	assert.ErrorIs(t, err, storage.ErrAlreadyRedeemed)

	// Счётчик не должен расти при отклонённой повторной активации.
	stats, err := s.PromoCodeStats(ctx, "GIFT2026WXYZ")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Promo.CurrentUses)
	assert.Len(t, stats.Usages, 1)
}

func TestRedeemPromoCode_MaxUsesBound(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	promoID, err := s.CreatePromoCode(ctx, models.PromoCode{
		Code:             "LIMITED3USES",
		Type:             models.PromoTypeSubscription,
		SubscriptionDays: intPtr(30),
		SubscriptionType: strPtr("pro"),
		MaxUses:          intPtr(3),
		CreatedBy:        1,
	})
	require.NoError(t, err)

	const users = 5
	for i := range users {
		require.NoError(t, s.UpsertUserIfAbsent(ctx, int64(200+i), fmt.Sprintf("user%d", i), "User", 7))
	}

	var wg sync.WaitGroup
	errs := make([]error, users)
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.RedeemPromoCode(ctx, promoID, int64(200+i))
		}(i)
	}
	wg.Wait()

	var ok, exhausted int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, storage.ErrExhausted):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 3, ok)
	assert.Equal(t, 2, exhausted)

	stats, err := s.PromoCodeStats(ctx, "LIMITED3USES")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Promo.CurrentUses)
	assert.Len(t, stats.Usages, 3)
}

func TestRedeemPromoCode_ConcurrentSameUser(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUserIfAbsent(ctx, 100, "alice", "Alice", 7))
	promoID, err := s.CreatePromoCode(ctx, models.PromoCode{
		Code:             "RACEPROOFXYZ",
		Type:             models.PromoTypeSubscription,
		SubscriptionDays: intPtr(30),
		SubscriptionType: strPtr("pro"),
		CreatedBy:        1,
	})
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.RedeemPromoCode(ctx, promoID, 100)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, storage.ErrAlreadyRedeemed)
		}
	}
	// Ровно одна попытка выигрывает.
	assert.Equal(t, 1, ok)
}

func TestDeletePromoCode_CascadesAndAllowsReRedemption(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUserIfAbsent(ctx, 100, "alice", "Alice", 7))
	promoID, err := s.CreatePromoCode(ctx, models.PromoCode{
		Code:             "REUSABLECODE",
		Type:             models.PromoTypeSubscription,
		SubscriptionDays: intPtr(30),
		SubscriptionType: strPtr("pro"),
		CreatedBy:        1,
	})
	require.NoError(t, err)
	require.NoError(t, s.RedeemPromoCode(ctx, promoID, 100))

	require.NoError(t, s.DeletePromoCode(ctx, promoID))
	_, err = s.GetPromoCodeByCode(ctx, "REUSABLECODE")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// История удалена вместе с промокодом: новый промокод с тем же
	// текстом пользователь активирует заново.
	newID, err := s.CreatePromoCode(ctx, models.PromoCode{
		Code:             "REUSABLECODE",
		Type:             models.PromoTypeSubscription,
		SubscriptionDays: intPtr(30),
		SubscriptionType: strPtr("pro"),
		CreatedBy:        1,
	})
	require.NoError(t, err)
	assert.NoError(t, s.RedeemPromoCode(ctx, newID, 100))
}

func TestDeactivatePromoCode(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	_, err := s.CreatePromoCode(ctx, models.PromoCode{
		Code:            "DISCOUNT50PC",
		Type:            models.PromoTypeDiscount,
		DiscountPercent: intPtr(50),
		CreatedBy:       1,
	})
	require.NoError(t, err)

	require.NoError(t, s.DeactivatePromoCode(ctx, "DISCOUNT50PC"))

	_, err = s.GetPromoCodeByCode(ctx, "DISCOUNT50PC")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Статистика остаётся доступной и для неактивного промокода.
	stats, err := s.PromoCodeStats(ctx, "DISCOUNT50PC")
	require.NoError(t, err)
	assert.False(t, stats.Promo.IsActive)

	err = s.DeactivatePromoCode(ctx, "NO-SUCH-CODE")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecordPayment_AppendOnly(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUserIfAbsent(ctx, 100, "alice", "Alice", 7))
	for i := range 3 {
		require.NoError(t, s.RecordPayment(ctx, models.Payment{
			UserID:           100,
			Amount:           500 + i,
			Currency:         "XTR",
			SubscriptionType: "pro_month",
			Status:           "completed",
		}))
	}

	payments, err := s.ListUserPayments(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, payments, 3)
}

func TestSubscriptionStats(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUserIfAbsent(ctx, 100, "alice", "Alice", 7))
	require.NoError(t, s.UpsertUserIfAbsent(ctx, 101, "bob", "Bob", 7))
	_, err := s.ExtendSubscription(ctx, 101, "orden_month", 30)
	require.NoError(t, err)

	stats, err := s.SubscriptionStats(ctx)
	require.NoError(t, err)

	byType := make(map[string]models.SubscriptionStat, len(stats))
	for _, st := range stats {
		byType[st.Type] = st
	}
	assert.Equal(t, 1, byType["trial"].Count)
	assert.Equal(t, 1, byType["orden_month"].Count)
	assert.Equal(t, 1, byType["orden_month"].ActiveCount)
}

func TestSetAdmin(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUserIfAbsent(ctx, 100, "alice", "Alice", 7))

	isAdmin, err := s.IsAdmin(ctx, 100)
	require.NoError(t, err)
	assert.False(t, isAdmin)

	require.NoError(t, s.SetAdmin(ctx, 100, true))
	isAdmin, err = s.IsAdmin(ctx, 100)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	// Неизвестный пользователь — не администратор, но и не ошибка.
	isAdmin, err = s.IsAdmin(ctx, 999)
	require.NoError(t, err)
	assert.False(t, isAdmin)

	assert.ErrorIs(t, s.SetAdmin(ctx, 999, true), storage.ErrNotFound)
}
