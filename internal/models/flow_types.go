package models

import (
	"database/sql"
	"time"
)

// Flow is the model for the 'flows' table.
// A flow is a stored automation script a user can assign to devices.
// The step configuration is an opaque JSON blob the device agent interprets.
type Flow struct {
	ID        int64          `json:"id" db:"id"`
	UserID    int64          `json:"userId" db:"user_id"`
	Name      string         `json:"name" db:"name"`
	Slug      string         `json:"slug" db:"slug"`
	Type      string         `json:"type" db:"type"` // interaction, content, warmup
	Config    string         `json:"config" db:"config"`
	IsActive  bool           `json:"isActive" db:"is_active"`
	Notes     sql.NullString `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time      `json:"updatedAt" db:"updated_at"`

	// Populated by handlers for list views, not a DB column.
	DeviceCount int `json:"deviceCount" db:"-"`
}
