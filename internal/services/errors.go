package services

import "errors"

// ErrInvalidInput возвращается при некорректных входных данных:
// неположительное число дней продления, неизвестный тип подписки,
// невалидные параметры промокода.
var ErrInvalidInput = errors.New("invalid input")
