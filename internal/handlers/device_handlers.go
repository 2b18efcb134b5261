package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trihai306/agentphone-backend/internal/broadcast"
	"github.com/trihai306/agentphone-backend/internal/models"
)

//
// --- Device Handlers ---
//

type RegisterDeviceInput struct {
	Name     string `json:"name" binding:"required"`
	Serial   string `json:"serial" binding:"required"`
	Platform string `json:"platform" binding:"required,oneof=android ios"`
}

// RegisterDevice is the handler for POST /v1/devices.
// A device starts 'offline' until its agent first reports in.
func (h *Handlers) RegisterDevice(c *gin.Context) {
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)

	var input RegisterDeviceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	device := &models.Device{
		UserID:    userID,
		Name:      input.Name,
		Serial:    input.Serial,
		Platform:  input.Platform,
		Status:    "offline",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	query := `
		INSERT INTO devices
		(user_id, name, serial, platform, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := h.DB.Exec(query,
		device.UserID,
		device.Name,
		device.Serial,
		device.Platform,
		device.Status,
		device.CreatedAt,
		device.UpdatedAt,
	)
	if err != nil {
		// The unique index on serial stops double registration.
		c.JSON(http.StatusConflict, gin.H{"error": "A device with this serial is already registered"})
		return
	}

	id, err := result.LastInsertId()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get new device ID"})
		return
	}
	device.ID = id

	c.JSON(http.StatusCreated, gin.H{
		"message": "Device registered",
		"device":  device,
	})
}

// GetMyDevices is the handler for GET /v1/devices.
func (h *Handlers) GetMyDevices(c *gin.Context) {
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)

	query := `
		SELECT id, user_id, name, serial, platform, status, app_version, last_active_at, created_at, updated_at
		FROM devices
		WHERE user_id = ?
		ORDER BY created_at DESC`

	rows, err := h.DB.Query(query, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(
			&d.ID,
			&d.UserID,
			&d.Name,
			&d.Serial,
			&d.Platform,
			&d.Status,
			&d.AppVersion,
			&d.LastActiveAt,
			&d.CreatedAt,
			&d.UpdatedAt,
		); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan device row"})
			return
		}
		devices = append(devices, &d)
	}
	if err = rows.Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error iterating device rows"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

type DeviceStatusInput struct {
	Status     string `json:"status" binding:"required,oneof=online offline busy"`
	AppVersion string `json:"appVersion"`
}

// UpdateDeviceStatus is the handler for PATCH /v1/devices/:id/status.
// The device agent calls this as a heartbeat; each call bumps last_active_at.
func (h *Handlers) UpdateDeviceStatus(c *gin.Context) {
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)
	deviceID := c.Param("id")

	var input DeviceStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	query := `
		UPDATE devices
		SET status = ?, app_version = COALESCE(NULLIF(?, ''), app_version), last_active_at = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`

	result, err := h.DB.Exec(query, input.Status, input.AppVersion, time.Now(), time.Now(), deviceID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update device"})
		return
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check affected rows"})
		return
	}
	if rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Device not found or you do not have permission to update it"})
		return
	}

	// Let dashboards update live. Best effort; the row is the truth.
	if h.Broadcaster != nil {
		_ = h.Broadcaster.Publish(c.Request.Context(), broadcast.NewEvent(
			broadcast.UserChannel(userID),
			broadcast.EventDeviceStatus,
			map[string]interface{}{
				"deviceId": deviceID,
				"status":   input.Status,
			},
		))
	}

	c.JSON(http.StatusOK, gin.H{"message": "Device status updated"})
}

// DeleteDevice is the handler for DELETE /v1/devices/:id.
func (h *Handlers) DeleteDevice(c *gin.Context) {
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)
	deviceID := c.Param("id")

	result, err := h.DB.Exec("DELETE FROM devices WHERE id = ? AND user_id = ?", deviceID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete device"})
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Device not found or you do not have permission to delete it"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Device deleted"})
}
