package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trihai306/agentphone-backend/internal/broadcast"
	"github.com/trihai306/agentphone-backend/internal/models"
)

//
// --- Admin Handlers ---
//
// All of these sit behind the AdminMiddleware.
//

// GetPlatformStats is the handler for GET /v1/admin/stats.
// One round trip per figure keeps the queries simple; this endpoint is
// dashboard-only and not hot.
func (h *Handlers) GetPlatformStats(c *gin.Context) {
	stats := gin.H{}

	counts := []struct {
		key   string
		query string
	}{
		{"totalUsers", "SELECT COUNT(*) FROM users"},
		{"activeUsers", "SELECT COUNT(*) FROM users WHERE status = 'active'"},
		{"totalDevices", "SELECT COUNT(*) FROM devices"},
		{"onlineDevices", "SELECT COUNT(*) FROM devices WHERE status = 'online'"},
		{"totalGenerations", "SELECT COUNT(*) FROM ai_generations"},
		{"failedGenerations", "SELECT COUNT(*) FROM ai_generations WHERE status = 'failed'"},
		{"totalScenarios", "SELECT COUNT(*) FROM ai_scenarios"},
	}

	for _, cnt := range counts {
		var n int64
		if err := h.DB.QueryRow(cnt.query).Scan(&n); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute platform stats"})
			return
		}
		stats[cnt.key] = n
	}

	// Credits spent = the sum of all negative ledger rows, flipped positive.
	var creditsSpent float64
	err := h.DB.QueryRow("SELECT COALESCE(-SUM(amount), 0) FROM wallet_transactions WHERE amount < 0").Scan(&creditsSpent)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute credits spent"})
		return
	}
	stats["creditsSpent"] = creditsSpent

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// GetAllUsers is the handler for GET /v1/admin/users.
func (h *Handlers) GetAllUsers(c *gin.Context) {
	query := `
		SELECT id, role, status, email, full_name, created_at, updated_at
		FROM users
		ORDER BY created_at DESC
		LIMIT 200`

	rows, err := h.DB.Query(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(
			&u.ID,
			&u.Role,
			&u.Status,
			&u.Email,
			&u.FullName,
			&u.CreatedAt,
			&u.UpdatedAt,
		); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan user row"})
			return
		}
		users = append(users, &u)
	}
	if err = rows.Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error iterating user rows"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

// SuspendUser is the handler for PATCH /v1/admin/users/:id/suspend.
// A suspended user fails the auth middleware on their next request.
func (h *Handlers) SuspendUser(c *gin.Context) {
	targetID := c.Param("id")

	// Admins cannot suspend each other through this endpoint.
	query := `
		UPDATE users
		SET status = 'suspended', updated_at = ?
		WHERE id = ? AND role = 'user' AND status = 'active'`

	result, err := h.DB.Exec(query, time.Now(), targetID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to suspend user"})
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found, not active, or not suspendable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User suspended"})
}

// ReactivateUser is the handler for PATCH /v1/admin/users/:id/reactivate.
func (h *Handlers) ReactivateUser(c *gin.Context) {
	targetID := c.Param("id")

	query := `
		UPDATE users
		SET status = 'active', updated_at = ?
		WHERE id = ? AND status = 'suspended'`

	result, err := h.DB.Exec(query, time.Now(), targetID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reactivate user"})
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found or not suspended"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User reactivated"})
}

type AnnouncementInput struct {
	Title   string `json:"title" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// PostAnnouncement is the handler for POST /v1/admin/announcements.
// The announcement goes out on the shared 'announcements' channel; every
// connected client sees it regardless of their user channel.
func (h *Handlers) PostAnnouncement(c *gin.Context) {
	var input AnnouncementInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.Broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Broadcasting is not configured"})
		return
	}

	err := h.Broadcaster.Publish(c.Request.Context(), broadcast.NewEvent(
		broadcast.ChannelAnnouncements,
		broadcast.EventAnnouncement,
		map[string]interface{}{
			"title":   input.Title,
			"message": input.Message,
		},
	))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to publish announcement"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Announcement published"})
}

type CreatePackageInput struct {
	Name            string  `json:"name" binding:"required"`
	Description     string  `json:"description"`
	Price           float64 `json:"price" binding:"required,gt=0"`
	CreditsIncluded float64 `json:"creditsIncluded" binding:"required,gt=0"`
	DurationDays    int     `json:"durationDays" binding:"required,gt=0"`
	IsPublic        bool    `json:"isPublic"`
}

// CreatePackage is the handler for POST /v1/admin/packages.
func (h *Handlers) CreatePackage(c *gin.Context) {
	var input CreatePackageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	query := `
		INSERT INTO service_packages
		(name, description, price, credits_included, duration_days, is_public, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := h.DB.Exec(query,
		input.Name,
		input.Description,
		input.Price,
		input.CreditsIncluded,
		input.DurationDays,
		input.IsPublic,
		time.Now(),
		time.Now(),
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create package"})
		return
	}

	id, _ := result.LastInsertId()
	c.JSON(http.StatusCreated, gin.H{
		"message":   "Package created",
		"packageId": id,
	})
}
