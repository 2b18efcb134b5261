package models

import (
	"database/sql"
	"time"
)

// Device is the model for the 'devices' table.
// One row per registered phone; status is pushed by the device agent.
type Device struct {
	ID           int64          `json:"id" db:"id"`
	UserID       int64          `json:"userId" db:"user_id"`
	Name         string         `json:"name" db:"name"`
	Serial       string         `json:"serial" db:"serial"`
	Platform     string         `json:"platform" db:"platform"` // android, ios
	Status       string         `json:"status" db:"status"`     // online, offline, busy
	AppVersion   sql.NullString `json:"appVersion,omitempty" db:"app_version"`
	LastActiveAt sql.NullTime   `json:"lastActiveAt,omitempty" db:"last_active_at"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time      `json:"updatedAt" db:"updated_at"`
}
