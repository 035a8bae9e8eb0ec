// Package models содержит доменные структуры промокодов.
package models

import "time"

// Типы промокодов.
const (
	// PromoTypeDiscount — промокод на скидку для следующей оплаты.
	PromoTypeDiscount = "discount"
	// PromoTypeSubscription — промокод на выдачу подписки.
	PromoTypeSubscription = "subscription"
)

// PromoCode представляет промокод.
// Для типа discount заполнено поле DiscountPercent,
// для типа subscription — SubscriptionDays и SubscriptionType.
// MaxUses == nil означает безлимитное количество использований.
type PromoCode struct {
	ID               int64      // Первичный ключ
	Code             string     // Уникальный код из 12 символов
	Type             string     // discount или subscription
	DiscountPercent  *int       // Процент скидки (discount)
	SubscriptionDays *int       // Количество дней подписки (subscription)
	SubscriptionType *string    // Уровень подписки: pro или orden (subscription)
	MaxUses          *int       // Лимит использований, nil — безлимит
	CurrentUses      int        // Текущее количество использований
	CreatedDate      time.Time  // Дата создания
	CreatedBy        int64      // Telegram user_id создавшего администратора
	IsActive         bool       // Активен ли промокод
}

// PromoUsage — одна запись об использовании промокода.
// Пара (PromocodeID, UserID) уникальна: пользователь активирует
// конкретный промокод не более одного раза.
type PromoUsage struct {
	PromocodeID int64     `json:"promocode_id"`
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	FirstName   string    `json:"first_name,omitempty"`
	UsageDate   time.Time `json:"usage_date"`
}

// PromoCodeStats — промокод вместе с историей его использований.
type PromoCodeStats struct {
	Promo  PromoCode    `json:"promocode"`
	Usages []PromoUsage `json:"usage_list"`
}

// DummyCreatePromo используется для приёма данных создания промокода из JSON-запроса.
type DummyCreatePromo struct {
	Type             string `json:"type" validate:"required,oneof=discount subscription"`
	DiscountPercent  int    `json:"discount_percent,omitempty"`
	SubscriptionDays int    `json:"subscription_days,omitempty"`
	SubscriptionType string `json:"subscription_type,omitempty"`
	MaxUses          int    `json:"max_uses,omitempty"` // 0 — безлимит
}

// DummyRedeem используется для приёма запроса на активацию промокода.
type DummyRedeem struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Code   string `json:"code" validate:"required,alphanum"`
}
