// Package storage определяет интерфейс хранилища данных бота
// и общую для всех бэкендов систему типизированных ошибок.
//
// Хранилище реализовано тремя взаимозаменяемыми адаптерами:
// встраиваемый SQLite (internal/storage/sqlitestore), пул PostgreSQL
// (internal/storage/postgres) и REST data API в стиле PostgREST
// (internal/storage/restapi). Бэкенд выбирается ровно один раз при
// сборке приложения; остальной код работает только с этим интерфейсом.
//
// Все конфликтующие операции над одним пользователем или одним
// промокодом сериализуются средствами самого бэкенда: уникальными
// ограничениями, условными UPDATE и транзакциями. Адаптеры не
// используют внутрипроцессные блокировки, поэтому несколько
// экземпляров сервиса могут работать с одной базой одновременно.
package storage

import (
	"context"
	"time"

	"github.com/daryveda/gifts-entitlement/internal/models"
)

// EntitlementStore описывает операции хранилища над пользователями,
// подписками и промокодами. Семантика операций идентична во всех
// трёх адаптерах.
type EntitlementStore interface {
	// GetUser возвращает пользователя по Telegram user_id.
	// Возвращает ErrNotFound, если пользователь не зарегистрирован.
	GetUser(ctx context.Context, id int64) (*models.User, error)
	// UpsertUserIfAbsent регистрирует пользователя с пробной подпиской
	// (trial, now + trialDays). Повторный вызов для существующего
	// пользователя ничего не меняет: дата регистрации и окончание
	// пробного периода сохраняются.
	UpsertUserIfAbsent(ctx context.Context, id int64, username, firstName string, trialDays int) error
	// UpdateBirthDate обновляет дату рождения пользователя.
	UpdateBirthDate(ctx context.Context, id int64, birthDate string) error
	// ExtendSubscription атомарно продлевает подписку пользователя.
	// Если текущая дата окончания в будущем, новые дни прибавляются
	// к ней, иначе отсчёт идёт от текущего момента. Вычисление даты
	// выполняется внутри бэкенда одним условным обновлением, а не
	// чтением и записью на стороне приложения.
	ExtendSubscription(ctx context.Context, id int64, subType string, days int) (time.Time, error)
	// RecordPayment добавляет запись в журнал платежей.
	RecordPayment(ctx context.Context, p models.Payment) error
	// ListUserPayments возвращает платежи пользователя, новые первыми.
	ListUserPayments(ctx context.Context, userID int64) ([]*models.Payment, error)

	// CreatePromoCode сохраняет новый промокод и возвращает его ID.
	// При коллизии кода возвращает ErrDuplicateKey; вызывающая сторона
	// генерирует новый код и повторяет попытку.
	CreatePromoCode(ctx context.Context, promo models.PromoCode) (int64, error)
	// GetPromoCodeByCode возвращает активный промокод по коду.
	// Неактивный или отсутствующий код — ErrNotFound.
	GetPromoCodeByCode(ctx context.Context, code string) (*models.PromoCode, error)
	// HasUserRedeemed сообщает, активировал ли пользователь промокод ранее.
	HasUserRedeemed(ctx context.Context, promoID, userID int64) (bool, error)
	// RedeemPromoCode атомарно фиксирует использование промокода:
	// запись в истории использований и инкремент счётчика выполняются
	// как одно целое. Нарушение уникальности (promocode_id, user_id)
	// возвращается как ErrAlreadyRedeemed, достижение max_uses — как
	// ErrExhausted. Именно эти ошибки, а не предварительные проверки
	// чтением, являются авторитетным сигналом при гонках.
	RedeemPromoCode(ctx context.Context, promoID, userID int64) error
	// DeactivatePromoCode помечает промокод неактивным.
	DeactivatePromoCode(ctx context.Context, code string) error
	// DeletePromoCode удаляет промокод вместе со всей историей
	// его использований.
	DeletePromoCode(ctx context.Context, promoID int64) error
	// ListPromoCodes возвращает все промокоды, новые первыми.
	ListPromoCodes(ctx context.Context) ([]*models.PromoCode, error)
	// PromoCodeStats возвращает промокод и историю его использований.
	PromoCodeStats(ctx context.Context, code string) (*models.PromoCodeStats, error)

	// ListUsers возвращает последних зарегистрированных пользователей.
	ListUsers(ctx context.Context, limit int) ([]*models.User, error)
	// SubscriptionStats возвращает агрегированную статистику по типам подписок.
	SubscriptionStats(ctx context.Context) ([]models.SubscriptionStat, error)
	// IsAdmin сообщает, является ли пользователь администратором.
	IsAdmin(ctx context.Context, id int64) (bool, error)
	// SetAdmin выставляет либо снимает флаг администратора.
	SetAdmin(ctx context.Context, id int64, isAdmin bool) error

	// Close освобождает ресурсы бэкенда.
	Close() error
}
