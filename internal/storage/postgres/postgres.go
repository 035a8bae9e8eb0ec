// Package postgres реализует хранилище данных бота на основе PostgreSQL
// через пул соединений database/sql с драйвером pgx. Все инварианты
// (уникальность активации промокода, лимит использований, продление
// подписки) обеспечиваются ограничениями и условными запросами на
// стороне базы, что позволяет безопасно запускать несколько
// экземпляров сервиса без общей памяти.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/daryveda/gifts-entitlement/internal/models"
	"github.com/daryveda/gifts-entitlement/internal/storage"
)

// Коды ошибок PostgreSQL, значимые для перевода в типизированные ошибки.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Storage инкапсулирует пул соединений с PostgreSQL и реализует
// storage.EntitlementStore.
type Storage struct {
	DB *sql.DB
}

// New создаёт подключение к PostgreSQL с ограниченным пулом и таймаутом
// команд на уровне соединения.
func New(ctx context.Context, connString string, maxConns int, commandTimeout time.Duration) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetConnMaxIdleTime(commandTimeout)

	pingCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, errors.Join(storage.ErrStorageUnavailable, err))
	}

	return &Storage{DB: db}, nil
}

// Close закрывает пул соединений.
func (s *Storage) Close() error {
	return s.DB.Close()
}

// classify переводит ошибку драйвера в типизированную ошибку хранилища.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return storage.ErrDuplicateKey
		case pgForeignKeyViolation:
			return storage.ErrNotFound
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.Join(storage.ErrStorageUnavailable, err)
	}
	return err
}

// ===== USER METHODS =====

// GetUser возвращает пользователя по Telegram user_id.
func (s *Storage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	const op = "storage.postgres.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_id, username, first_name, COALESCE(birth_date, ''),
				  registration_date, subscription_type, subscription_end_date, is_admin
			  FROM users WHERE user_id = $1`
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
	var username, firstName sql.NullString
	var endDate sql.NullTime
	if err := row.Scan(&u.ID, &username, &firstName, &u.BirthDate,
		&u.RegistrationDate, &u.SubscriptionType, &endDate, &u.IsAdmin); err != nil {
		return nil, err
	}
	u.Username = username.String
	u.FirstName = firstName.String
	if endDate.Valid {
		u.SubscriptionEndDate = &endDate.Time
	}
	return &u, nil
}

// UpsertUserIfAbsent регистрирует нового пользователя с пробным периодом.
// Повторная регистрация не трогает существующую запись.
func (s *Storage) UpsertUserIfAbsent(ctx context.Context, id int64, username, firstName string, trialDays int) error {
	const op = "storage.postgres.UpsertUserIfAbsent"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO users (user_id, username, first_name, registration_date,
				  subscription_type, subscription_end_date)
			  VALUES ($1, $2, $3, NOW(), 'trial', NOW() + make_interval(days => $4))
			  ON CONFLICT (user_id) DO NOTHING`
	if _, err := s.DB.ExecContext(ctx, query, id, username, firstName, trialDays); err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	return nil
}

// UpdateBirthDate обновляет дату рождения пользователя.
func (s *Storage) UpdateBirthDate(ctx context.Context, id int64, birthDate string) error {
	const op = "storage.postgres.UpdateBirthDate"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET birth_date = $1 WHERE user_id = $2`
	result, err := s.DB.ExecContext(ctx, query, birthDate, id)
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

// ExtendSubscription продлевает подписку одним условным UPDATE:
// арифметика дат выполняется внутри базы, поэтому конкурентные
// продления одного пользователя корректно складываются, а не
// затирают друг друга.
func (s *Storage) ExtendSubscription(ctx context.Context, id int64, subType string, days int) (time.Time, error) {
	const op = "storage.postgres.ExtendSubscription"
	select {
	case <-ctx.Done():
		return time.Time{}, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET subscription_type = $2,
				  subscription_end_date = CASE
					  WHEN subscription_end_date IS NOT NULL AND subscription_end_date > NOW()
					  THEN subscription_end_date
					  ELSE NOW()
				  END + make_interval(days => $3)
			  WHERE user_id = $1
			  RETURNING subscription_end_date`
	var newEnd time.Time
	err := s.DB.QueryRowContext(ctx, query, id, subType, days).Scan(&newEnd)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
		return time.Time{}, fmt.Errorf("%s: %w", op, classify(err))
	}
	return newEnd, nil
}

// RecordPayment добавляет запись в журнал платежей.
func (s *Storage) RecordPayment(ctx context.Context, p models.Payment) error {
	const op = "storage.postgres.RecordPayment"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO payments (user_id, amount, currency, payment_date, subscription_type, status)
			  VALUES ($1, $2, $3, NOW(), $4, $5)`
	if _, err := s.DB.ExecContext(ctx, query,
		p.UserID, p.Amount, p.Currency, p.SubscriptionType, p.Status); err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	return nil
}

// ListUserPayments возвращает историю платежей пользователя.
func (s *Storage) ListUserPayments(ctx context.Context, userID int64) ([]*models.Payment, error) {
	const op = "storage.postgres.ListUserPayments"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_id, amount, currency, payment_date, subscription_type, status
			  FROM payments
			  WHERE user_id = $1
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
		if err := rows.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency,
			&p.PaymentDate, &p.SubscriptionType, &p.Status); err != nil {
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
	const op = "storage.postgres.CreatePromoCode"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO promocodes
				  (code, type, discount_percent, subscription_days, subscription_type,
				   max_uses, created_date, created_by)
			  VALUES ($1, $2, $3, $4, $5, $6, NOW(), $7)
			  RETURNING id`
	var newID int64
	err := s.DB.QueryRowContext(ctx, query,
		promo.Code, promo.Type, promo.DiscountPercent, promo.SubscriptionDays,
		promo.SubscriptionType, promo.MaxUses, promo.CreatedBy).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, classify(err))
	}
	return newID, nil
}

// GetPromoCodeByCode возвращает активный промокод по коду.
func (s *Storage) GetPromoCodeByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	const op = "storage.postgres.GetPromoCodeByCode"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, code, type, discount_percent, subscription_days, subscription_type,
				  max_uses, current_uses, created_date, created_by, is_active
			  FROM promocodes
			  WHERE code = $1 AND is_active = TRUE`
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
	if err := row.Scan(&p.ID, &p.Code, &p.Type, &discount, &days, &subType,
		&maxUses, &p.CurrentUses, &p.CreatedDate, &p.CreatedBy, &p.IsActive); err != nil {
		return nil, err
	}
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
	const op = "storage.postgres.HasUserRedeemed"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT COUNT(*) FROM promocode_usage
			  WHERE promocode_id = $1 AND user_id = $2`
	var count int
	if err := s.DB.QueryRowContext(ctx, query, promoID, userID).Scan(&count); err != nil {
		return false, fmt.Errorf("%s: %w", op, classify(err))
	}
	return count > 0, nil
}

// RedeemPromoCode фиксирует использование промокода одной транзакцией:
// вставка в историю использований и инкремент счётчика с проверкой
// лимита. Нарушение уникальности (promocode_id, user_id) — авторитетный
// сигнал повторной активации, нулевой результат условного UPDATE —
// сигнал исчерпания лимита; в обоих случаях транзакция откатывается
// целиком, так что эффект и учёт не расходятся.
func (s *Storage) RedeemPromoCode(ctx context.Context, promoID, userID int64) error {
	const op = "storage.postgres.RedeemPromoCode"
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
		 VALUES ($1, $2, NOW())`, promoID, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyRedeemed)
		}
		return fmt.Errorf("%s: %w", op, classify(err))
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE promocodes SET current_uses = current_uses + 1
		 WHERE id = $1 AND (max_uses IS NULL OR current_uses < max_uses)`, promoID)
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
	const op = "storage.postgres.DeactivatePromoCode"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	result, err := s.DB.ExecContext(ctx,
		`UPDATE promocodes SET is_active = FALSE WHERE code = $1`, code)
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
	const op = "storage.postgres.DeletePromoCode"
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
		`DELETE FROM promocode_usage WHERE promocode_id = $1`, promoID); err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	result, err := tx.ExecContext(ctx,
		`DELETE FROM promocodes WHERE id = $1`, promoID)
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
	const op = "storage.postgres.ListPromoCodes"
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
	const op = "storage.postgres.PromoCodeStats"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, code, type, discount_percent, subscription_days, subscription_type,
				  max_uses, current_uses, created_date, created_by, is_active
			  FROM promocodes WHERE code = $1`
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
				   WHERE pu.promocode_id = $1
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
		if err := rows.Scan(&u.PromocodeID, &u.UserID, &u.Username, &u.FirstName, &u.UsageDate); err != nil {
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
	const op = "storage.postgres.ListUsers"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_id, username, first_name, COALESCE(birth_date, ''),
				  registration_date, subscription_type, subscription_end_date, is_admin
			  FROM users
			  ORDER BY registration_date DESC
			  LIMIT $1`
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
	const op = "storage.postgres.SubscriptionStats"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT subscription_type,
				  COUNT(*) AS count,
				  COUNT(CASE WHEN subscription_end_date > NOW() THEN 1 END) AS active_count
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
	const op = "storage.postgres.IsAdmin"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var isAdmin bool
	err := s.DB.QueryRowContext(ctx,
		`SELECT is_admin FROM users WHERE user_id = $1`, id).Scan(&isAdmin)
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
	const op = "storage.postgres.SetAdmin"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	result, err := s.DB.ExecContext(ctx,
		`UPDATE users SET is_admin = $1 WHERE user_id = $2`, isAdmin, id)
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
