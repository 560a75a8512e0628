package domain

import "time"

// Idempotency is a chat reply stored under the requester's Idempotency-Key
// until ExpiresAt. Requester is lower-cased. Response holds the exact JSON
// body sent the first time.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Requester string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_requester_key,priority:1"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_requester_key,priority:2"`
	Response  string    `gorm:"type:TEXT NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

func (Idempotency) TableName() string { return "idempotency" }
