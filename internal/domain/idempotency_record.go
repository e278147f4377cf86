package domain

import "time"

// IdempotencyRecord stores the first response produced for a client supplied
// Idempotency-Key so that retries of the same request can be replayed.
type IdempotencyRecord struct {
	ID              uint      `gorm:"primaryKey"`
	Scope           string    `gorm:"size:100;not null;uniqueIndex:idx_idempotency_scope_key"`
	IdempotencyKey  string    `gorm:"size:128;not null;uniqueIndex:idx_idempotency_scope_key"`
	FingerprintHash string    `gorm:"size:64;not null"`
	Status          string    `gorm:"size:20;not null"`
	ResponseStatus  int       `gorm:"not null;default:0"`
	ResponseBody    []byte
	ContentType     string    `gorm:"size:100"`
	ExpiresAt       time.Time `gorm:"not null;index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
