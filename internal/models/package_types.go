package models

import "time"

// ServicePackage defines the model for the 'service_packages' table.
// A package is a purchasable bundle of generation credits.
type ServicePackage struct {
	ID              int64     `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	Description     string    `json:"description" db:"description"`
	Price           float64   `json:"price" db:"price"`
	CreditsIncluded float64   `json:"creditsIncluded" db:"credits_included"`
	DurationDays    int       `json:"durationDays" db:"duration_days"`
	IsPublic        bool      `json:"isPublic" db:"is_public"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}

// UserServicePackage defines the model for the 'user_service_packages' table.
// Status: pending (bought, not started), active, expired, cancelled.
// Only a pending package can be activated.
type UserServicePackage struct {
	ID        int64      `json:"id" db:"id"`
	UserID    int64      `json:"userId" db:"user_id"`
	PackageID int64      `json:"packageId" db:"package_id"`
	Status    string     `json:"status" db:"status"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`

	// These fields are not in the DB, but will be
	// populated by our handlers for the list views.
	PackageName string `json:"packageName,omitempty" db:"-"`
	UserName    string `json:"userName,omitempty" db:"-"`
}
