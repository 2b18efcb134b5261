// Package notifications holds the shared insert used by both the API
// handlers and the background workers, so the row shape stays in one place.
package notifications

import (
	"database/sql"
	"fmt"
	"time"
)

// Insert creates a notification row. It must be called from within a
// database transaction so the notification and the state change it
// describes commit together. An empty link is stored as NULL.
func Insert(tx *sql.Tx, userID int64, message string, link string) error {
	var nullLink sql.NullString
	if link != "" {
		nullLink = sql.NullString{String: link, Valid: true}
	}

	query := `
		INSERT INTO notifications
		(user_id, message, link, is_read, created_at)
		VALUES (?, ?, ?, 0, ?)`

	_, err := tx.Exec(query, userID, message, nullLink, time.Now())
	if err != nil {
		return fmt.Errorf("failed to add notification: %w", err)
	}

	return nil
}
