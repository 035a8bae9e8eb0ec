// Package sqlitestore реализует хранилище данных бота на встраиваемой
// базе SQLite. Подходит для одиночного развёртывания без внешних
// сервисов: схема создаётся при открытии файла, все инварианты
// обеспечиваются теми же ограничениями уникальности и условными
// запросами, что и в PostgreSQL-бэкенде, поэтому поведение обоих
// бэкендов совпадает с точностью до байта ответа.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/daryveda/gifts-entitlement/internal/models"
	"github.com/daryveda/gifts-entitlement/internal/storage"
)

// timeLayout — формат хранения дат в SQLite. Все даты хранятся в UTC.
const timeLayout = "2006-01-02 15:04:05"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id INTEGER PRIMARY KEY,
	username TEXT,
	first_name TEXT,
	birth_date TEXT,
	registration_date TEXT NOT NULL,
	subscription_type TEXT NOT NULL DEFAULT 'trial',
	subscription_end_date TEXT,
	is_admin INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS promocodes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	discount_percent INTEGER,
	subscription_days INTEGER,
	subscription_type TEXT,
	max_uses INTEGER,
	current_uses INTEGER NOT NULL DEFAULT 0,
	created_date TEXT NOT NULL,
	created_by INTEGER NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS promocode_usage (
	promocode_id INTEGER NOT NULL REFERENCES promocodes(id),
	user_id INTEGER NOT NULL REFERENCES users(user_id),
	usage_date TEXT NOT NULL,
	PRIMARY KEY (promocode_id, user_id)
);

CREATE TABLE IF NOT EXISTS payments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(user_id),
	amount INTEGER NOT NULL,
	currency TEXT NOT NULL,
	payment_date TEXT NOT NULL,
	subscription_type TEXT NOT NULL,
	status TEXT NOT NULL
);
`

// Storage инкапсулирует соединение с SQLite и реализует
// storage.EntitlementStore.
type Storage struct {
	DB *sql.DB
}

// New открывает (при необходимости создавая) файл базы данных и
// приводит схему к актуальному виду. Пул ограничен одним соединением:
// SQLite допускает только одного пишущего, а busy_timeout в DSN
// страхует от ошибок блокировки при конкурентном доступе.
func New(ctx context.Context, path string) (*Storage, error) {
	const op = "storage.sqlitestore.New"

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	db.SetMaxOpenConns(1)

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, errors.Join(storage.ErrStorageUnavailable, err))
	}
	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{DB: db}, nil
}

// Close закрывает соединение с базой.
func (s *Storage) Close() error {
	return s.DB.Close()
}

// classify переводит ошибку драйвера в типизированную ошибку хранилища.
func classify(err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return storage.ErrDuplicateKey
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return storage.ErrNotFound
		}
	}
	return err
}

func nowUTC() string {
	return time.Now().UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.UTC)
}

// ===== USER METHODS =====

// GetUser возвращает пользователя по Telegram user_id.
func (s *Storage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	const op = "storage.sqlitestore.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_id, username, first_name, COALESCE(birth_date, ''),
				  registration_date, subscription_type, subscription_end_date, is_admin
			  FROM users WHERE user_id = ?`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var username, firstName, regDate sql.NullString
	var endDate sql.NullString
	if err := row.Scan(&u.ID, &username, &firstName, &u.BirthDate,
		&regDate, &u.SubscriptionType, &endDate, &u.IsAdmin); err != nil {
		return nil, err
	}
	u.Username = username.String
	u.FirstName = firstName.String
	if regDate.Valid {
		t, err := parseTime(regDate.String)
		if err != nil {
			return nil, err
		}
		u.RegistrationDate = t
	}
	if endDate.Valid {
		t, err := parseTime(endDate.String)
		if err != nil {
			return nil, err
		}
		u.SubscriptionEndDate = &t
	}
	return &u, nil
}

// UpsertUserIfAbsent регистрирует нового пользователя с пробным периодом.
// Повторная регистрация не трогает существующую запись.
func (s *Storage) UpsertUserIfAbsent(ctx context.Context, id int64, username, firstName string, trialDays int) error {
	const op = "storage.sqlitestore.UpsertUserIfAbsent"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	now := time.Now().UTC()
	query := `INSERT INTO users (user_id, username, first_name, registration_date,
				  subscription_type, subscription_end_date)
			  VALUES (?, ?, ?, ?, 'trial', ?)
			  ON CONFLICT (user_id) DO NOTHING`
	_, err := s.DB.ExecContext(ctx, query, id, username, firstName,
		now.Format(timeLayout), now.AddDate(0, 0, trialDays).Format(timeLayout))
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	return nil
}

// UpdateBirthDate обновляет дату рождения пользователя.
func (s *Storage) UpdateBirthDate(ctx context.Context, id int64, birthDate string) error {
	const op = "storage.sqlitestore.UpdateBirthDate"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	result, err := s.DB.ExecContext(ctx,
		`UPDATE users SET birth_date = ? WHERE user_id = ?`, birthDate, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// ExtendSubscription продлевает подписку одним условным UPDATE: база
// выбирает точку отсчёта (текущее окончание, если оно в будущем, иначе
// текущий момент) и прибавляет дни сама, поэтому конкурентные
// продления одного пользователя складываются, а не затирают друг друга.
func (s *Storage) ExtendSubscription(ctx context.Context, id int64, subType string, days int) (time.Time, error) {
	const op = "storage.sqlitestore.ExtendSubscription"
	select {
	case <-ctx.Done():
		return time.Time{}, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET subscription_type = ?,
				  subscription_end_date = STRFTIME('%Y-%m-%d %H:%M:%S',
					  CASE
						  WHEN subscription_end_date IS NOT NULL AND subscription_end_date > STRFTIME('%Y-%m-%d %H:%M:%S', 'now')
						  THEN subscription_end_date
						  ELSE STRFTIME('%Y-%m-%d %H:%M:%S', 'now')
					  END,
					  '+' || CAST(? AS TEXT) || ' days')
			  WHERE user_id = ?
			  RETURNING subscription_end_date`
	var raw string
	err := s.DB.QueryRowContext(ctx, query, subType, days, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
		return time.Time{}, fmt.Errorf("%s: %w", op, classify(err))
	}
	newEnd, err := parseTime(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return newEnd, nil
}

// RecordPayment добавляет запись в журнал платежей.
func (s *Storage) RecordPayment(ctx context.Context, p models.Payment) error {
	const op = "storage.sqlitestore.RecordPayment"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO payments (user_id, amount, currency, payment_date, subscription_type, status)
			  VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.DB.ExecContext(ctx, query,
		p.UserID, p.Amount, p.Currency, nowUTC(), p.SubscriptionType, p.Status); err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	return nil
}

// ListUserPayments возвращает историю платежей пользователя.
func (s *Storage) ListUserPayments(ctx context.Context, userID int64) ([]*models.Payment, error) {
	const op = "storage.sqlitestore.ListUserPayments"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_id, amount, currency, payment_date, subscription_type, status
			  FROM payments
			  WHERE user_id = ?
			  ORDER BY payment_date DESC`
	rows, err := s.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Payment
	for rows.Next() {
		var p models.Payment
		var paid string
		if err := rows.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency,
			&paid, &p.SubscriptionType, &p.Status); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if p.PaymentDate, err = parseTime(paid); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ===== PROMOCODE METHODS =====

// CreatePromoCode сохраняет новый промокод и возвращает его ID.
func (s *Storage) CreatePromoCode(ctx context.Context, promo models.PromoCode) (int64, error) {
	const op = "storage.sqlitestore.CreatePromoCode"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO promocodes
				  (code, type, discount_percent, subscription_days, subscription_type,
				   max_uses, created_date, created_by)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			  RETURNING id`
	var newID int64
	err := s.DB.QueryRowContext(ctx, query,
		promo.Code, promo.Type, promo.DiscountPercent, promo.SubscriptionDays,
		promo.SubscriptionType, promo.MaxUses, nowUTC(), promo.CreatedBy).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, classify(err))
	}
	return newID, nil
}

// GetPromoCodeByCode возвращает активный промокод по коду.
func (s *Storage) GetPromoCodeByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	const op = "storage.sqlitestore.GetPromoCodeByCode"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, code, type, discount_percent, subscription_days, subscription_type,
				  max_uses, current_uses, created_date, created_by, is_active
			  FROM promocodes
			  WHERE code = ? AND is_active = 1`
	p, err := scanPromo(s.DB.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return p, nil
}

func scanPromo(row rowScanner) (*models.PromoCode, error) {
	var p models.PromoCode
	var discount, days, maxUses sql.NullInt64
	var subType sql.NullString
	var created string
	if err := row.Scan(&p.ID, &p.Code, &p.Type, &discount, &days, &subType,
		&maxUses, &p.CurrentUses, &created, &p.CreatedBy, &p.IsActive); err != nil {
		return nil, err
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	p.CreatedDate = t
	if discount.Valid {
		v := int(discount.Int64)
		p.DiscountPercent = &v
	}
	if days.Valid {
		v := int(days.Int64)
		p.SubscriptionDays = &v
	}
	if subType.Valid {
		v := subType.String
		p.SubscriptionType = &v
	}
	if maxUses.Valid {
		v := int(maxUses.Int64)
		p.MaxUses = &v
	}
	return &p, nil
}

// HasUserRedeemed проверяет, активировал ли пользователь промокод ранее.
func (s *Storage) HasUserRedeemed(ctx context.Context, promoID, userID int64) (bool, error) {
	const op = "storage.sqlitestore.HasUserRedeemed"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT COUNT(*) FROM promocode_usage
			  WHERE promocode_id = ? AND user_id = ?`
	var count int
	if err := s.DB.QueryRowContext(ctx, query, promoID, userID).Scan(&count); err != nil {
		return false, fmt.Errorf("%s: %w", op, classify(err))
	}
	return count > 0, nil
}

// RedeemPromoCode фиксирует использование промокода одной транзакцией:
// вставка в историю использований и инкремент счётчика с проверкой
// лимита. Нарушение первичного ключа (promocode_id, user_id) —
// авторитетный сигнал повторной активации, нулевой результат условного
// UPDATE — сигнал исчерпания лимита; в обоих случаях транзакция
// откатывается целиком.
func (s *Storage) RedeemPromoCode(ctx context.Context, promoID, userID int64) error {
	const op = "storage.sqlitestore.RedeemPromoCode"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO promocode_usage (promocode_id, user_id, usage_date)
		 VALUES (?, ?, ?)`, promoID, userID, nowUTC())
	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
				sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyRedeemed)
		}
		return fmt.Errorf("%s: %w", op, classify(err))
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE promocodes SET current_uses = current_uses + 1
		 WHERE id = ? AND (max_uses IS NULL OR current_uses < max_uses)`, promoID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrExhausted)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	return nil
}

// DeactivatePromoCode помечает промокод неактивным.
func (s *Storage) DeactivatePromoCode(ctx context.Context, code string) error {
	const op = "storage.sqlitestore.DeactivatePromoCode"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	result, err := s.DB.ExecContext(ctx,
		`UPDATE promocodes SET is_active = 0 WHERE code = ?`, code)
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// DeletePromoCode удаляет промокод и каскадно всю историю его
// использований. После удаления код с тем же текстом можно создать
// заново, и прежние пользователи смогут активировать его повторно.
func (s *Storage) DeletePromoCode(ctx context.Context, promoID int64) error {
	const op = "storage.sqlitestore.DeletePromoCode"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM promocode_usage WHERE promocode_id = ?`, promoID); err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	result, err := tx.ExecContext(ctx,
		`DELETE FROM promocodes WHERE id = ?`, promoID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	return nil
}

// ListPromoCodes возвращает все промокоды, новые первыми.
func (s *Storage) ListPromoCodes(ctx context.Context) ([]*models.PromoCode, error) {
	const op = "storage.sqlitestore.ListPromoCodes"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, code, type, discount_percent, subscription_days, subscription_type,
				  max_uses, current_uses, created_date, created_by, is_active
			  FROM promocodes
			  ORDER BY created_date DESC`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.PromoCode
	for rows.Next() {
		p, err := scanPromo(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// PromoCodeStats возвращает промокод (независимо от активности)
// вместе с историей использований.
func (s *Storage) PromoCodeStats(ctx context.Context, code string) (*models.PromoCodeStats, error) {
	const op = "storage.sqlitestore.PromoCodeStats"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, code, type, discount_percent, subscription_days, subscription_type,
				  max_uses, current_uses, created_date, created_by, is_active
			  FROM promocodes WHERE code = ?`
	promo, err := scanPromo(s.DB.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}

	usageQuery := `SELECT pu.promocode_id, pu.user_id, COALESCE(u.username, ''),
					   COALESCE(u.first_name, ''), pu.usage_date
				   FROM promocode_usage pu
				   JOIN users u ON pu.user_id = u.user_id
				   WHERE pu.promocode_id = ?
				   ORDER BY pu.usage_date DESC`
	rows, err := s.DB.QueryContext(ctx, usageQuery, promo.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	defer func() {
		_ = rows.Close()
	}()

	stats := &models.PromoCodeStats{Promo: *promo}
	for rows.Next() {
		var u models.PromoUsage
		var used string
		if err := rows.Scan(&u.PromocodeID, &u.UserID, &u.Username, &u.FirstName, &used); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if u.UsageDate, err = parseTime(used); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		stats.Usages = append(stats.Usages, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return stats, nil
}

// ===== ADMIN METHODS =====

// ListUsers возвращает последних зарегистрированных пользователей.
func (s *Storage) ListUsers(ctx context.Context, limit int) ([]*models.User, error) {
	const op = "storage.sqlitestore.ListUsers"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_id, username, first_name, COALESCE(birth_date, ''),
				  registration_date, subscription_type, subscription_end_date, is_admin
			  FROM users
			  ORDER BY registration_date DESC
			  LIMIT ?`
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// SubscriptionStats возвращает статистику по типам подписок.
func (s *Storage) SubscriptionStats(ctx context.Context) ([]models.SubscriptionStat, error) {
	const op = "storage.sqlitestore.SubscriptionStats"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT subscription_type,
				  COUNT(*) AS count,
				  COUNT(CASE WHEN subscription_end_date > STRFTIME('%Y-%m-%d %H:%M:%S', 'now') THEN 1 END) AS active_count
			  FROM users
			  GROUP BY subscription_type`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.SubscriptionStat
	for rows.Next() {
		var st models.SubscriptionStat
		if err := rows.Scan(&st.Type, &st.Count, &st.ActiveCount); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// IsAdmin проверяет флаг администратора. Для незарегистрированного
// пользователя возвращает false без ошибки.
func (s *Storage) IsAdmin(ctx context.Context, id int64) (bool, error) {
	const op = "storage.sqlitestore.IsAdmin"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var isAdmin bool
	err := s.DB.QueryRowContext(ctx,
		`SELECT is_admin FROM users WHERE user_id = ?`, id).Scan(&isAdmin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, classify(err))
	}
	return isAdmin, nil
}

// SetAdmin выставляет либо снимает флаг администратора.
func (s *Storage) SetAdmin(ctx context.Context, id int64, isAdmin bool) error {
	const op = "storage.sqlitestore.SetAdmin"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	result, err := s.DB.ExecContext(ctx,
		`UPDATE users SET is_admin = ? WHERE user_id = ?`, isAdmin, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

var _ storage.EntitlementStore = (*Storage)(nil)
