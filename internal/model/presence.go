package model

import "time"

// PresenceRecord — самодекларируемый статус пользователя. Таймаута нет:
// IsOnline отражает только последний явный вызов online/offline.
type PresenceRecord struct {
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	ClassID  *string   `json:"class_id"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}
