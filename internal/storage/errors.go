package storage

import "errors"

// Типизированные ошибки хранилища. Адаптеры обязаны переводить
// ошибки своих драйверов в эти значения, чтобы вызывающий код мог
// различать их через errors.Is независимо от выбранного бэкенда.
var (
	// ErrNotFound — пользователь или промокод не найден.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey — нарушение уникальности при создании записи.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrAlreadyRedeemed — пользователь уже активировал этот промокод.
	ErrAlreadyRedeemed = errors.New("promocode already redeemed by user")
	// ErrExhausted — достигнут лимит использований промокода.
	ErrExhausted = errors.New("promocode usage limit reached")
	// ErrStorageUnavailable — бэкенд недоступен. Ошибка поднимается
	// наверх как есть; переключения на другой бэкенд не происходит.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
