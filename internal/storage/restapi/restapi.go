// Package restapi реализует хранилище данных бота поверх REST
// data-API в стиле PostgREST (Supabase). Бэкенд предоставляет таблицы
// как HTTP-ресурсы с фильтрами в query-параметрах; своих транзакций у
// клиента нет, поэтому атомарность продления и активации промокода
// достигается условными запросами (compare-and-set по текущему
// значению строки) с ограниченным числом повторов. Конфликт
// уникальности сервер возвращает статусом 409 — это тот же
// авторитетный сигнал, что и нарушение ограничения в SQL-бэкендах,
// поэтому наблюдаемое поведение всех трёх бэкендов совпадает.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/daryveda/gifts-entitlement/internal/models"
	"github.com/daryveda/gifts-entitlement/internal/storage"
)

// casAttempts ограничивает число повторов условного обновления
// при конкурентных изменениях одной строки.
const casAttempts = 5

// Storage инкапсулирует HTTP-клиент data-API и реализует
// storage.EntitlementStore.
type Storage struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New создаёт клиент data-API. Доступность сервиса проверяется
// пробным запросом, чтобы ошибки конфигурации проявлялись на старте.
func New(ctx context.Context, baseURL, apiKey string) (*Storage, error) {
	const op = "storage.restapi.New"

	s := &Storage{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	req, err := s.newRequest(ctx, http.MethodGet, "/users", url.Values{"limit": {"1"}}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, errors.Join(storage.ErrStorageUnavailable, err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %w: unexpected status %s", op, storage.ErrStorageUnavailable, resp.Status)
	}
	return s, nil
}

// Close освобождает неиспользуемые соединения клиента.
func (s *Storage) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

func (s *Storage) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := s.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do выполняет запрос и переводит транспортные и серверные сбои в
// ErrStorageUnavailable. Тело ответа возвращается целиком: ответы
// data-API невелики.
func (s *Storage) do(req *http.Request) (int, []byte, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, errors.Join(storage.ErrStorageUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Join(storage.ErrStorageUnavailable, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return resp.StatusCode, data, fmt.Errorf("%w: unexpected status %s", storage.ErrStorageUnavailable, resp.Status)
	}
	return resp.StatusCode, data, nil
}

// ===== WIRE TYPES =====

// Даты передаются строками, чтобы при условных обновлениях можно было
// эхом вернуть серверу ровно то значение, которое он отдал.
type userRow struct {
	UserID              int64   `json:"user_id"`
	Username            *string `json:"username"`
	FirstName           *string `json:"first_name"`
	BirthDate           *string `json:"birth_date"`
	RegistrationDate    string  `json:"registration_date"`
	SubscriptionType    string  `json:"subscription_type"`
	SubscriptionEndDate *string `json:"subscription_end_date"`
	IsAdmin             bool    `json:"is_admin"`
}

type promoRow struct {
	ID               int64   `json:"id"`
	Code             string  `json:"code"`
	Type             string  `json:"type"`
	DiscountPercent  *int    `json:"discount_percent"`
	SubscriptionDays *int    `json:"subscription_days"`
	SubscriptionType *string `json:"subscription_type"`
	MaxUses          *int    `json:"max_uses"`
	CurrentUses      int     `json:"current_uses"`
	CreatedDate      string  `json:"created_date"`
	CreatedBy        int64   `json:"created_by"`
	IsActive         bool    `json:"is_active"`
}

type usageRow struct {
	PromocodeID int64  `json:"promocode_id"`
	UserID      int64  `json:"user_id"`
	UsageDate   string `json:"usage_date"`
	User        *struct {
		Username  *string `json:"username"`
		FirstName *string `json:"first_name"`
	} `json:"users,omitempty"`
}

type paymentRow struct {
	ID               int64  `json:"id,omitempty"`
	UserID           int64  `json:"user_id"`
	Amount           int    `json:"amount"`
	Currency         string `json:"currency"`
	PaymentDate      string `json:"payment_date"`
	SubscriptionType string `json:"subscription_type"`
	Status           string `json:"status"`
}

func parseAPITime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func formatAPITime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r userRow) toModel() (*models.User, error) {
	u := &models.User{
		ID:               r.UserID,
		Username:         derefStr(r.Username),
		FirstName:        derefStr(r.FirstName),
		BirthDate:        derefStr(r.BirthDate),
		SubscriptionType: r.SubscriptionType,
		IsAdmin:          r.IsAdmin,
	}
	reg, err := parseAPITime(r.RegistrationDate)
	if err != nil {
		return nil, err
	}
	u.RegistrationDate = reg
	if r.SubscriptionEndDate != nil {
		end, err := parseAPITime(*r.SubscriptionEndDate)
		if err != nil {
			return nil, err
		}
		u.SubscriptionEndDate = &end
	}
	return u, nil
}

func (r promoRow) toModel() (*models.PromoCode, error) {
	created, err := parseAPITime(r.CreatedDate)
	if err != nil {
		return nil, err
	}
	return &models.PromoCode{
		ID:               r.ID,
		Code:             r.Code,
		Type:             r.Type,
		DiscountPercent:  r.DiscountPercent,
		SubscriptionDays: r.SubscriptionDays,
		SubscriptionType: r.SubscriptionType,
		MaxUses:          r.MaxUses,
		CurrentUses:      r.CurrentUses,
		CreatedDate:      created,
		CreatedBy:        r.CreatedBy,
		IsActive:         r.IsActive,
	}, nil
}

func eqInt64(v int64) string {
	return "eq." + strconv.FormatInt(v, 10)
}

// ===== USER METHODS =====

func (s *Storage) fetchUserRow(ctx context.Context, id int64) (*userRow, error) {
	req, err := s.newRequest(ctx, http.MethodGet, "/users",
		url.Values{"user_id": {eqInt64(id)}}, nil)
	if err != nil {
		return nil, err
	}
	status, data, err := s.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", status)
	}
	var rows []userRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, storage.ErrNotFound
	}
	return &rows[0], nil
}

// GetUser возвращает пользователя по Telegram user_id.
func (s *Storage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	const op = "storage.restapi.GetUser"

	row, err := s.fetchUserRow(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	u, err := row.toModel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UpsertUserIfAbsent регистрирует нового пользователя с пробным
// периодом. Конфликт по user_id сервер молча игнорирует, поэтому
// повторная регистрация не трогает существующую запись.
func (s *Storage) UpsertUserIfAbsent(ctx context.Context, id int64, username, firstName string, trialDays int) error {
	const op = "storage.restapi.UpsertUserIfAbsent"

	now := time.Now().UTC()
	end := formatAPITime(now.AddDate(0, 0, trialDays))
	row := userRow{
		UserID:              id,
		Username:            &username,
		FirstName:           &firstName,
		RegistrationDate:    formatAPITime(now),
		SubscriptionType:    "trial",
		SubscriptionEndDate: &end,
	}

	req, err := s.newRequest(ctx, http.MethodPost, "/users",
		url.Values{"on_conflict": {"user_id"}}, row)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Prefer", "resolution=ignore-duplicates")

	status, _, err := s.do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", op, status)
	}
	return nil
}

// patchRows выполняет условный PATCH и возвращает затронутые строки.
func (s *Storage) patchRows(ctx context.Context, path string, query url.Values, body any, out any) (int, error) {
	req, err := s.newRequest(ctx, http.MethodPatch, path, query, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Prefer", "return=representation")

	status, data, err := s.do(req)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", status)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, err
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return 0, err
		}
	}
	return len(raw), nil
}

// UpdateBirthDate обновляет дату рождения пользователя.
func (s *Storage) UpdateBirthDate(ctx context.Context, id int64, birthDate string) error {
	const op = "storage.restapi.UpdateBirthDate"

	n, err := s.patchRows(ctx, "/users",
		url.Values{"user_id": {eqInt64(id)}},
		map[string]string{"birth_date": birthDate}, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// ExtendSubscription продлевает подписку условным обновлением: PATCH
// фильтруется по прочитанному значению даты окончания, поэтому при
// конкурентном продлении проигравшая сторона не затирает чужой
// результат, а перечитывает строку и повторяет попытку.
func (s *Storage) ExtendSubscription(ctx context.Context, id int64, subType string, days int) (time.Time, error) {
	const op = "storage.restapi.ExtendSubscription"

	for attempt := 0; attempt < casAttempts; attempt++ {
		row, err := s.fetchUserRow(ctx, id)
		if err != nil {
			return time.Time{}, fmt.Errorf("%s: %w", op, err)
		}

		now := time.Now().UTC()
		base := now
		if row.SubscriptionEndDate != nil {
			current, err := parseAPITime(*row.SubscriptionEndDate)
			if err != nil {
				return time.Time{}, fmt.Errorf("%s: %w", op, err)
			}
			if current.After(now) {
				base = current
			}
		}
		newEnd := base.AddDate(0, 0, days)

		query := url.Values{"user_id": {eqInt64(id)}}
		if row.SubscriptionEndDate == nil {
			query.Set("subscription_end_date", "is.null")
		} else {
			query.Set("subscription_end_date", "eq."+*row.SubscriptionEndDate)
		}

		n, err := s.patchRows(ctx, "/users", query, map[string]string{
			"subscription_type":     subType,
			"subscription_end_date": formatAPITime(newEnd),
		}, nil)
		if err != nil {
			return time.Time{}, fmt.Errorf("%s: %w", op, err)
		}
		if n > 0 {
			return newEnd, nil
		}
	}
	return time.Time{}, fmt.Errorf("%s: conflict not resolved after %d attempts", op, casAttempts)
}

// RecordPayment добавляет запись в журнал платежей.
func (s *Storage) RecordPayment(ctx context.Context, p models.Payment) error {
	const op = "storage.restapi.RecordPayment"

	req, err := s.newRequest(ctx, http.MethodPost, "/payments", nil, paymentRow{
		UserID:           p.UserID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		PaymentDate:      formatAPITime(time.Now()),
		SubscriptionType: p.SubscriptionType,
		Status:           p.Status,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	status, _, err := s.do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if status != http.StatusCreated {
		return fmt.Errorf("%s: unexpected status %d", op, status)
	}
	return nil
}

// ListUserPayments возвращает историю платежей пользователя.
func (s *Storage) ListUserPayments(ctx context.Context, userID int64) ([]*models.Payment, error) {
	const op = "storage.restapi.ListUserPayments"

	req, err := s.newRequest(ctx, http.MethodGet, "/payments", url.Values{
		"user_id": {eqInt64(userID)},
		"order":   {"payment_date.desc"},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	status, data, err := s.do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", op, status)
	}

	var rows []paymentRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result := make([]*models.Payment, 0, len(rows))
	for _, r := range rows {
		paid, err := parseAPITime(r.PaymentDate)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &models.Payment{
			ID:               r.ID,
			UserID:           r.UserID,
			Amount:           r.Amount,
			Currency:         r.Currency,
			PaymentDate:      paid,
			SubscriptionType: r.SubscriptionType,
			Status:           r.Status,
		})
	}
	return result, nil
}

// ===== PROMOCODE METHODS =====

// CreatePromoCode сохраняет новый промокод и возвращает его ID.
// Конфликт уникальности кода сервер возвращает статусом 409.
func (s *Storage) CreatePromoCode(ctx context.Context, promo models.PromoCode) (int64, error) {
	const op = "storage.restapi.CreatePromoCode"

	req, err := s.newRequest(ctx, http.MethodPost, "/promocodes", nil, promoRow{
		Code:             promo.Code,
		Type:             promo.Type,
		DiscountPercent:  promo.DiscountPercent,
		SubscriptionDays: promo.SubscriptionDays,
		SubscriptionType: promo.SubscriptionType,
		MaxUses:          promo.MaxUses,
		CreatedDate:      formatAPITime(time.Now()),
		CreatedBy:        promo.CreatedBy,
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Prefer", "return=representation")

	status, data, err := s.do(req)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if status == http.StatusConflict {
		return 0, fmt.Errorf("%s: %w", op, storage.ErrDuplicateKey)
	}
	if status != http.StatusCreated {
		return 0, fmt.Errorf("%s: unexpected status %d", op, status)
	}

	var rows []promoRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("%s: empty representation in response", op)
	}
	return rows[0].ID, nil
}

func (s *Storage) fetchPromoRows(ctx context.Context, query url.Values) ([]promoRow, error) {
	req, err := s.newRequest(ctx, http.MethodGet, "/promocodes", query, nil)
	if err != nil {
		return nil, err
	}
	status, data, err := s.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", status)
	}
	var rows []promoRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// GetPromoCodeByCode возвращает активный промокод по коду.
func (s *Storage) GetPromoCodeByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	const op = "storage.restapi.GetPromoCodeByCode"

	rows, err := s.fetchPromoRows(ctx, url.Values{
		"code":      {"eq." + code},
		"is_active": {"eq.true"},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	p, err := rows[0].toModel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// HasUserRedeemed проверяет, активировал ли пользователь промокод ранее.
func (s *Storage) HasUserRedeemed(ctx context.Context, promoID, userID int64) (bool, error) {
	const op = "storage.restapi.HasUserRedeemed"

	req, err := s.newRequest(ctx, http.MethodGet, "/promocode_usage", url.Values{
		"promocode_id": {eqInt64(promoID)},
		"user_id":      {eqInt64(userID)},
		"select":       {"user_id"},
	}, nil)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	status, data, err := s.do(req)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("%s: unexpected status %d", op, status)
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return len(rows) > 0, nil
}

// RedeemPromoCode фиксирует использование промокода. Сначала
// вставляется строка истории: конфликт уникальности (статус 409) —
// авторитетный сигнал повторной активации. Затем счётчик
// инкрементируется условным PATCH по прочитанному значению; если
// лимит уже выбран, вставленная строка истории компенсируется
// удалением и возвращается ErrExhausted.
func (s *Storage) RedeemPromoCode(ctx context.Context, promoID, userID int64) error {
	const op = "storage.restapi.RedeemPromoCode"

	req, err := s.newRequest(ctx, http.MethodPost, "/promocode_usage", nil, usageRow{
		PromocodeID: promoID,
		UserID:      userID,
		UsageDate:   formatAPITime(time.Now()),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	status, _, err := s.do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if status == http.StatusConflict {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyRedeemed)
	}
	if status != http.StatusCreated {
		return fmt.Errorf("%s: unexpected status %d", op, status)
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		rows, err := s.fetchPromoRows(ctx, url.Values{"id": {eqInt64(promoID)}})
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if len(rows) == 0 {
			return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
		promo := rows[0]

		if promo.MaxUses != nil && promo.CurrentUses >= *promo.MaxUses {
			if err := s.deleteUsage(ctx, promoID, userID); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			return fmt.Errorf("%s: %w", op, storage.ErrExhausted)
		}

		n, err := s.patchRows(ctx, "/promocodes", url.Values{
			"id":           {eqInt64(promoID)},
			"current_uses": {"eq." + strconv.Itoa(promo.CurrentUses)},
		}, map[string]int{"current_uses": promo.CurrentUses + 1}, nil)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if n > 0 {
			return nil
		}
	}
	return fmt.Errorf("%s: conflict not resolved after %d attempts", op, casAttempts)
}

func (s *Storage) deleteUsage(ctx context.Context, promoID, userID int64) error {
	req, err := s.newRequest(ctx, http.MethodDelete, "/promocode_usage", url.Values{
		"promocode_id": {eqInt64(promoID)},
		"user_id":      {eqInt64(userID)},
	}, nil)
	if err != nil {
		return err
	}
	status, _, err := s.do(req)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent && status != http.StatusOK {
		return fmt.Errorf("unexpected status %d", status)
	}
	return nil
}

// DeactivatePromoCode помечает промокод неактивным.
func (s *Storage) DeactivatePromoCode(ctx context.Context, code string) error {
	const op = "storage.restapi.DeactivatePromoCode"

	n, err := s.patchRows(ctx, "/promocodes",
		url.Values{"code": {"eq." + code}},
		map[string]bool{"is_active": false}, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// DeletePromoCode удаляет промокод и всю историю его использований.
// После удаления код с тем же текстом можно создать заново, и прежние
// пользователи смогут активировать его повторно.
func (s *Storage) DeletePromoCode(ctx context.Context, promoID int64) error {
	const op = "storage.restapi.DeletePromoCode"

	req, err := s.newRequest(ctx, http.MethodDelete, "/promocode_usage",
		url.Values{"promocode_id": {eqInt64(promoID)}}, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	status, _, err := s.do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if status != http.StatusNoContent && status != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", op, status)
	}

	req, err = s.newRequest(ctx, http.MethodDelete, "/promocodes",
		url.Values{"id": {eqInt64(promoID)}}, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Prefer", "return=representation")

	status, data, err := s.do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", op, status)
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// ListPromoCodes возвращает все промокоды, новые первыми.
func (s *Storage) ListPromoCodes(ctx context.Context) ([]*models.PromoCode, error) {
	const op = "storage.restapi.ListPromoCodes"

	rows, err := s.fetchPromoRows(ctx, url.Values{"order": {"created_date.desc"}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result := make([]*models.PromoCode, 0, len(rows))
	for _, r := range rows {
		p, err := r.toModel()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, p)
	}
	return result, nil
}

// PromoCodeStats возвращает промокод (независимо от активности)
// вместе с историей использований. Имена пользователей подтягиваются
// встроенным ресурсом users.
func (s *Storage) PromoCodeStats(ctx context.Context, code string) (*models.PromoCodeStats, error) {
	const op = "storage.restapi.PromoCodeStats"

	rows, err := s.fetchPromoRows(ctx, url.Values{"code": {"eq." + code}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	promo, err := rows[0].toModel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req, err := s.newRequest(ctx, http.MethodGet, "/promocode_usage", url.Values{
		"promocode_id": {eqInt64(promo.ID)},
		"select":       {"promocode_id,user_id,usage_date,users(username,first_name)"},
		"order":        {"usage_date.desc"},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	status, data, err := s.do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", op, status)
	}

	var usages []usageRow
	if err := json.Unmarshal(data, &usages); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	stats := &models.PromoCodeStats{Promo: *promo}
	for _, r := range usages {
		used, err := parseAPITime(r.UsageDate)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		u := models.PromoUsage{
			PromocodeID: r.PromocodeID,
			UserID:      r.UserID,
			UsageDate:   used,
		}
		if r.User != nil {
			u.Username = derefStr(r.User.Username)
			u.FirstName = derefStr(r.User.FirstName)
		}
		stats.Usages = append(stats.Usages, u)
	}
	return stats, nil
}

// ===== ADMIN METHODS =====

// ListUsers возвращает последних зарегистрированных пользователей.
func (s *Storage) ListUsers(ctx context.Context, limit int) ([]*models.User, error) {
	const op = "storage.restapi.ListUsers"

	req, err := s.newRequest(ctx, http.MethodGet, "/users", url.Values{
		"order": {"registration_date.desc"},
		"limit": {strconv.Itoa(limit)},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	status, data, err := s.do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", op, status)
	}

	var rows []userRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result := make([]*models.User, 0, len(rows))
	for _, r := range rows {
		u, err := r.toModel()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, u)
	}
	return result, nil
}

// SubscriptionStats возвращает статистику по типам подписок.
// Data-API не делает агрегаций, поэтому сводка собирается на клиенте.
func (s *Storage) SubscriptionStats(ctx context.Context) ([]models.SubscriptionStat, error) {
	const op = "storage.restapi.SubscriptionStats"

	req, err := s.newRequest(ctx, http.MethodGet, "/users", url.Values{
		"select": {"subscription_type,subscription_end_date"},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	status, data, err := s.do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", op, status)
	}

	var rows []struct {
		SubscriptionType    string  `json:"subscription_type"`
		SubscriptionEndDate *string `json:"subscription_end_date"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now()
	byType := make(map[string]*models.SubscriptionStat)
	order := make([]string, 0)
	for _, r := range rows {
		st, ok := byType[r.SubscriptionType]
		if !ok {
			st = &models.SubscriptionStat{Type: r.SubscriptionType}
			byType[r.SubscriptionType] = st
			order = append(order, r.SubscriptionType)
		}
		st.Count++
		if r.SubscriptionEndDate != nil {
			end, err := parseAPITime(*r.SubscriptionEndDate)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			if end.After(now) {
				st.ActiveCount++
			}
		}
	}

	result := make([]models.SubscriptionStat, 0, len(order))
	for _, t := range order {
		result = append(result, *byType[t])
	}
	return result, nil
}

// IsAdmin проверяет флаг администратора. Для незарегистрированного
// пользователя возвращает false без ошибки.
func (s *Storage) IsAdmin(ctx context.Context, id int64) (bool, error) {
	const op = "storage.restapi.IsAdmin"

	row, err := s.fetchUserRow(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return row.IsAdmin, nil
}

// SetAdmin выставляет либо снимает флаг администратора.
func (s *Storage) SetAdmin(ctx context.Context, id int64, isAdmin bool) error {
	const op = "storage.restapi.SetAdmin"

	n, err := s.patchRows(ctx, "/users",
		url.Values{"user_id": {eqInt64(id)}},
		map[string]bool{"is_admin": isAdmin}, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

var _ storage.EntitlementStore = (*Storage)(nil)
