package restapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryveda/gifts-entitlement/internal/models"
	"github.com/daryveda/gifts-entitlement/internal/storage"
)

// fakeDataAPI — минимальная модель PostgREST-сервера в памяти:
// ровно те фильтры и заголовки Prefer, которыми пользуется клиент.
type fakeDataAPI struct {
	mu     sync.Mutex
	users  []userRow
	promos []promoRow
	usages []usageRow
	nextID int64
}

func newFakeDataAPI() *fakeDataAPI {
	return &fakeDataAPI{nextID: 1}
}

func (f *fakeDataAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/users", f.handleUsers)
	mux.HandleFunc("/promocodes", f.handlePromos)
	mux.HandleFunc("/promocode_usage", f.handleUsages)
	mux.HandleFunc("/payments", f.handlePayments)
	return mux
}

func matchEq(filter, value string) bool {
	return filter == "" || filter == "eq."+value
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeDataAPI) handleUsers(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := r.URL.Query()
	switch r.Method {
	case http.MethodGet:
		matched := make([]userRow, 0)
		for _, u := range f.users {
			if matchEq(q.Get("user_id"), strconv.FormatInt(u.UserID, 10)) {
				matched = append(matched, u)
			}
		}
		writeJSON(w, http.StatusOK, matched)

	case http.MethodPost:
		var row userRow
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, u := range f.users {
			if u.UserID == row.UserID {
				if strings.Contains(r.Header.Get("Prefer"), "ignore-duplicates") {
					writeJSON(w, http.StatusCreated, []userRow{})
					return
				}
				w.WriteHeader(http.StatusConflict)
				return
			}
		}
		f.users = append(f.users, row)
		writeJSON(w, http.StatusCreated, []userRow{row})

	case http.MethodPatch:
		var patch map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		updated := make([]userRow, 0)
		for i := range f.users {
			u := &f.users[i]
			if !matchEq(q.Get("user_id"), strconv.FormatInt(u.UserID, 10)) {
				continue
			}
			if endFilter := q.Get("subscription_end_date"); endFilter != "" {
				if endFilter == "is.null" {
					if u.SubscriptionEndDate != nil {
						continue
					}
				} else if u.SubscriptionEndDate == nil || "eq."+*u.SubscriptionEndDate != endFilter {
					continue
				}
			}
			if v, ok := patch["birth_date"]; ok {
				_ = json.Unmarshal(v, &u.BirthDate)
			}
			if v, ok := patch["subscription_type"]; ok {
				_ = json.Unmarshal(v, &u.SubscriptionType)
			}
			if v, ok := patch["subscription_end_date"]; ok {
				_ = json.Unmarshal(v, &u.SubscriptionEndDate)
			}
			if v, ok := patch["is_admin"]; ok {
				_ = json.Unmarshal(v, &u.IsAdmin)
			}
			updated = append(updated, *u)
		}
		writeJSON(w, http.StatusOK, updated)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeDataAPI) handlePromos(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := r.URL.Query()
	filter := func(p promoRow) bool {
		if !matchEq(q.Get("id"), strconv.FormatInt(p.ID, 10)) {
			return false
		}
		if !matchEq(q.Get("code"), p.Code) {
			return false
		}
		if !matchEq(q.Get("is_active"), strconv.FormatBool(p.IsActive)) {
			return false
		}
		if !matchEq(q.Get("current_uses"), strconv.Itoa(p.CurrentUses)) {
			return false
		}
		return true
	}

	switch r.Method {
	case http.MethodGet:
		matched := make([]promoRow, 0)
		for _, p := range f.promos {
			if filter(p) {
				matched = append(matched, p)
			}
		}
		writeJSON(w, http.StatusOK, matched)

	case http.MethodPost:
		var row promoRow
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, p := range f.promos {
			if p.Code == row.Code {
				w.WriteHeader(http.StatusConflict)
				return
			}
		}
		row.ID = f.nextID
		f.nextID++
		row.IsActive = true
		f.promos = append(f.promos, row)
		writeJSON(w, http.StatusCreated, []promoRow{row})

	case http.MethodPatch:
		var patch map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		updated := make([]promoRow, 0)
		for i := range f.promos {
			p := &f.promos[i]
			if !filter(*p) {
				continue
			}
			if v, ok := patch["current_uses"]; ok {
				_ = json.Unmarshal(v, &p.CurrentUses)
			}
			if v, ok := patch["is_active"]; ok {
				_ = json.Unmarshal(v, &p.IsActive)
			}
			updated = append(updated, *p)
		}
		writeJSON(w, http.StatusOK, updated)

	case http.MethodDelete:
		kept := f.promos[:0]
		deleted := make([]promoRow, 0)
		for _, p := range f.promos {
			if filter(p) {
				deleted = append(deleted, p)
			} else {
				kept = append(kept, p)
			}
		}
		f.promos = kept
		writeJSON(w, http.StatusOK, deleted)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeDataAPI) handleUsages(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := r.URL.Query()
	filter := func(u usageRow) bool {
		return matchEq(q.Get("promocode_id"), strconv.FormatInt(u.PromocodeID, 10)) &&
			matchEq(q.Get("user_id"), strconv.FormatInt(u.UserID, 10))
	}

	switch r.Method {
	case http.MethodGet:
		matched := make([]usageRow, 0)
		for _, u := range f.usages {
			if filter(u) {
				matched = append(matched, u)
			}
		}
		writeJSON(w, http.StatusOK, matched)

	case http.MethodPost:
		var row usageRow
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, u := range f.usages {
			if u.PromocodeID == row.PromocodeID && u.UserID == row.UserID {
				w.WriteHeader(http.StatusConflict)
				return
			}
		}
		f.usages = append(f.usages, row)
		writeJSON(w, http.StatusCreated, []usageRow{row})

	case http.MethodDelete:
		kept := f.usages[:0]
		for _, u := range f.usages {
			if !filter(u) {
				kept = append(kept, u)
			}
		}
		f.usages = kept
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeDataAPI) handlePayments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, []paymentRow{})
	case http.MethodPost:
		writeJSON(w, http.StatusCreated, []paymentRow{})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func setupClient(t *testing.T) (*Storage, *fakeDataAPI) {
	t.Helper()

	fake := newFakeDataAPI()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	s, err := New(context.Background(), srv.URL, "test-key")
	require.NoError(t, err)
	return s, fake
}

func intPtr(v int) *int {
	return &v
}

func strPtr(v string) *string {
	return &v
}

func TestRestAPI_UserLifecycle(t *testing.T) {
	s, _ := setupClient(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUserIfAbsent(ctx, 100, "alice", "Alice", 7))
	require.NoError(t, s.UpsertUserIfAbsent(ctx, 100, "other", "Other", 7))

	u, err := s.GetUser(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "trial", u.SubscriptionType)
	require.NotNil(t, u.SubscriptionEndDate)

	require.NoError(t, s.UpdateBirthDate(ctx, 100, "01.01.1990"))
	u, err = s.GetUser(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "01.01.1990", u.BirthDate)

	_, err = s.GetUser(ctx, 999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.UpdateBirthDate(ctx, 999, "01.01.1990"), storage.ErrNotFound)
}

func TestRestAPI_ExtendSubscriptionStacks(t *testing.T) {
	s, _ := setupClient(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUserIfAbsent(ctx, 100, "alice", "Alice", 0))

	first, err := s.ExtendSubscription(ctx, 100, "pro_month", 30)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), first, time.Minute)

	second, err := s.ExtendSubscription(ctx, 100, "pro_month", 30)
	require.NoError(t, err)
	// Дата в хранилище усечена до секунд, поэтому сравнение с допуском.
	assert.WithinDuration(t, first.AddDate(0, 0, 30), second, time.Second)

	_, err = s.ExtendSubscription(ctx, 999, "pro_month", 30)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRestAPI_RedeemAuthoritativeConflict(t *testing.T) {
	s, fake := setupClient(t)
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
	assert.ErrorIs(t, s.RedeemPromoCode(ctx, promoID, 100), storage.ErrAlreadyRedeemed)

	fake.mu.Lock()
	assert.Equal(t, 1, fake.promos[0].CurrentUses)
	fake.mu.Unlock()
}

func TestRestAPI_RedeemExhaustedCompensates(t *testing.T) {
	s, fake := setupClient(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUserIfAbsent(ctx, 100, "alice", "Alice", 7))
	require.NoError(t, s.UpsertUserIfAbsent(ctx, 101, "bob", "Bob", 7))
	promoID, err := s.CreatePromoCode(ctx, models.PromoCode{
		Code:             "LIMITED1USES",
		Type:             models.PromoTypeSubscription,
		SubscriptionDays: intPtr(30),
		SubscriptionType: strPtr("pro"),
		MaxUses:          intPtr(1),
		CreatedBy:        1,
	})
	require.NoError(t, err)

	require.NoError(t, s.RedeemPromoCode(ctx, promoID, 100))
	assert.ErrorIs(t, s.RedeemPromoCode(ctx, promoID, 101), storage.ErrExhausted)

	// Компенсация: запись истории проигравшего удалена, счётчик не вырос.
	redeemed, err := s.HasUserRedeemed(ctx, promoID, 101)
	require.NoError(t, err)
	assert.False(t, redeemed)
	fake.mu.Lock()
	assert.Equal(t, 1, fake.promos[0].CurrentUses)
	assert.Len(t, fake.usages, 1)
	fake.mu.Unlock()
}

func TestRestAPI_CreateDuplicateCode(t *testing.T) {
	s, _ := setupClient(t)
	ctx := context.Background()

	promo := models.PromoCode{
		Code:            "DISCOUNT50PC",
		Type:            models.PromoTypeDiscount,
		DiscountPercent: intPtr(50),
		CreatedBy:       1,
	}
	_, err := s.CreatePromoCode(ctx, promo)
	require.NoError(t, err)

	_, err = s.CreatePromoCode(ctx, promo)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestRestAPI_DeactivateAndDelete(t *testing.T) {
	s, _ := setupClient(t)
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

	require.NoError(t, s.DeactivatePromoCode(ctx, "REUSABLECODE"))
	_, err = s.GetPromoCodeByCode(ctx, "REUSABLECODE")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	stats, err := s.PromoCodeStats(ctx, "REUSABLECODE")
	require.NoError(t, err)
	assert.False(t, stats.Promo.IsActive)
	assert.Len(t, stats.Usages, 1)

	// Удаление стирает историю: новый промокод с тем же текстом
	// пользователь активирует заново.
	require.NoError(t, s.DeletePromoCode(ctx, promoID))
	newID, err := s.CreatePromoCode(ctx, models.PromoCode{
		Code:             "REUSABLECODE",
		Type:             models.PromoTypeSubscription,
		SubscriptionDays: intPtr(30),
		SubscriptionType: strPtr("pro"),
		CreatedBy:        1,
	})
	require.NoError(t, err)
	assert.NoError(t, s.RedeemPromoCode(ctx, newID, 100))

	assert.ErrorIs(t, s.DeletePromoCode(ctx, 12345), storage.ErrNotFound)
}

func TestRestAPI_StorageUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	_, err := New(context.Background(), srv.URL, "test-key")
	assert.ErrorIs(t, err, storage.ErrStorageUnavailable)
}
