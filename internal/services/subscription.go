// Package services содержит бизнес-логику подписок, промокодов и
// проверки доступа. Сервисы работают поверх storage.EntitlementStore
// через узкие consumer-side интерфейсы и не знают, какой бэкенд
// выбран в конфигурации.
package services

// Типы подписок, назначаемые пользователю.
const (
	SubTypeTrial       = "trial"
	SubTypePremiumTest = "premium_test"
	SubTypeProMonth    = "pro_month"
	SubTypeProYear     = "pro_year"
	SubTypeOrdenMonth  = "orden_month"
	SubTypeOrdenYear   = "orden_year"
)

// Уровни доступа к функциям.
const (
	LevelTrial = "trial"
	LevelPro   = "pro"
	LevelOrden = "orden"
)

// subscriptionDays — длительность оплаченной подписки каждого типа.
var subscriptionDays = map[string]int{
	SubTypePremiumTest: 1,
	SubTypeProMonth:    30,
	SubTypeProYear:     365,
	SubTypeOrdenMonth:  30,
	SubTypeOrdenYear:   365,
}

// subscriptionLevels отображает тип подписки в уровень доступа.
// Тестовая подписка даёт базовый уровень, как и пробный период.
var subscriptionLevels = map[string]string{
	SubTypeTrial:       LevelTrial,
	SubTypePremiumTest: LevelTrial,
	SubTypeProMonth:    LevelPro,
	SubTypeProYear:     LevelPro,
	SubTypeOrdenMonth:  LevelOrden,
	SubTypeOrdenYear:   LevelOrden,
}

// levelRank задаёт иерархию уровней: trial и pro равноправны,
// orden выше обоих. Неизвестный уровень получает ранг 0.
var levelRank = map[string]int{
	LevelTrial: 1,
	LevelPro:   1,
	LevelOrden: 2,
}

// SubscriptionTypeDays возвращает длительность подписки указанного
// типа в днях. Для неизвестного типа (включая trial, который не
// продаётся) возвращает false.
func SubscriptionTypeDays(subType string) (int, bool) {
	days, ok := subscriptionDays[subType]
	return days, ok
}

// LevelForType возвращает уровень доступа для типа подписки.
// Неизвестный тип трактуется как базовый уровень.
func LevelForType(subType string) string {
	if level, ok := subscriptionLevels[subType]; ok {
		return level
	}
	return LevelTrial
}
