// Package models содержит доменную модель пользователя бота:
// учетную запись Telegram-пользователя вместе с текущим состоянием
// его подписки. Структуры используются в бизнес‑логике и при работе
// с хранилищем; за границу хранилища никогда не выходят типы,
// специфичные для конкретного бэкенда.
package models

import "time"

// User представляет пользователя бота.
// Идентификатор назначается Telegram и неизменяем.
type User struct {
	ID                  int64      // Telegram user_id, первичный ключ
	Username            string     // @username (может быть пустым)
	FirstName           string     // Отображаемое имя
	BirthDate           string     // Дата рождения в формате ДД.ММ.ГГГГ (как ввёл пользователь)
	RegistrationDate    time.Time  // Дата первой регистрации, не сбрасывается повторным /start
	SubscriptionType    string     // Тип подписки: trial, premium_test, pro_month, pro_year, orden_month, orden_year
	SubscriptionEndDate *time.Time // Дата окончания подписки, nil — подписка не назначена
	IsAdmin             bool       // Флаг администратора
}

// Subscription — сводка состояния подписки пользователя,
// возвращаемая сервисом доступа обработчикам функций.
type Subscription struct {
	Active  bool       `json:"active"`
	Type    string     `json:"type"`
	Level   string     `json:"level"`
	EndDate *time.Time `json:"end_date,omitempty"`
}

// SubscriptionStat — агрегированная статистика по одному типу подписки.
type SubscriptionStat struct {
	Type        string `json:"subscription_type"`
	Count       int    `json:"count"`
	ActiveCount int    `json:"active_count"`
}

// DummyRegisterUser используется для приёма данных регистрации из JSON-запроса.
type DummyRegisterUser struct {
	UserID    int64  `json:"user_id" validate:"required,gt=0"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// DummyBirthDate используется для приёма обновления даты рождения.
type DummyBirthDate struct {
	UserID    int64  `json:"user_id" validate:"required,gt=0"`
	BirthDate string `json:"birth_date" validate:"required"`
}
