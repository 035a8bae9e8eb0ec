// Package models содержит доменные структуры платежей.
package models

import "time"

// Payment — запись журнала платежей. Журнал только пополняется,
// существующие записи никогда не изменяются.
type Payment struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	Amount           int       `json:"amount"` // Сумма в Telegram Stars
	Currency         string    `json:"currency"`
	PaymentDate      time.Time `json:"payment_date"`
	SubscriptionType string    `json:"subscription_type"`
	Status           string    `json:"status"`
}

// PaymentEvent — подтверждение оплаты от платёжного шлюза.
// Приходит через webhook либо через очередь payments.confirmed.
// Ключа идемпотентности у события нет: повторная доставка приводит
// к повторному продлению подписки.
type PaymentEvent struct {
	UserID           int64  `json:"user_id" validate:"required,gt=0"`
	Amount           int    `json:"amount" validate:"required,gt=0"`
	Currency         string `json:"currency" validate:"required"`
	SubscriptionType string `json:"subscription_type" validate:"required"`
	ExternalTxnID    string `json:"external_txn_id"`
}
