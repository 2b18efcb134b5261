package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"

	"github.com/trihai306/agentphone-backend/internal/models"
)

//
// --- Flow Handlers ---
//

type FlowInput struct {
	Name   string `json:"name" binding:"required"`
	Type   string `json:"type" binding:"required,oneof=interaction content warmup"`
	Config string `json:"config" binding:"required"`
	Notes  string `json:"notes"`
}

// CreateFlow is the handler for POST /v1/flows.
// The config is an opaque JSON document the device agent interprets; we only
// validate that it parses.
func (h *Handlers) CreateFlow(c *gin.Context) {
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)

	var input FlowInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !json.Valid([]byte(input.Config)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Flow config must be valid JSON"})
		return
	}

	flow := &models.Flow{
		UserID:    userID,
		Name:      input.Name,
		Slug:      slug.Make(input.Name),
		Type:      input.Type,
		Config:    input.Config,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if input.Notes != "" {
		flow.Notes = sql.NullString{String: input.Notes, Valid: true}
	}

	query := `
		INSERT INTO flows
		(user_id, name, slug, type, config, is_active, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := h.DB.Exec(query,
		flow.UserID,
		flow.Name,
		flow.Slug,
		flow.Type,
		flow.Config,
		flow.IsActive,
		flow.Notes,
		flow.CreatedAt,
		flow.UpdatedAt,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create flow"})
		return
	}

	id, err := result.LastInsertId()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get new flow ID"})
		return
	}
	flow.ID = id

	c.JSON(http.StatusCreated, gin.H{
		"message": "Flow created",
		"flow":    flow,
	})
}

// GetMyFlows is the handler for GET /v1/flows.
// Each row carries the number of devices the flow is assigned to.
func (h *Handlers) GetMyFlows(c *gin.Context) {
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)

	query := `
		SELECT f.id, f.user_id, f.name, f.slug, f.type, f.config, f.is_active, f.notes, f.created_at, f.updated_at,
		       (SELECT COUNT(*) FROM device_flows df WHERE df.flow_id = f.id) AS device_count
		FROM flows f
		WHERE f.user_id = ?
		ORDER BY f.created_at DESC`

	rows, err := h.DB.Query(query, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}
	defer rows.Close()

	var flows []*models.Flow
	for rows.Next() {
		var f models.Flow
		if err := rows.Scan(
			&f.ID,
			&f.UserID,
			&f.Name,
			&f.Slug,
			&f.Type,
			&f.Config,
			&f.IsActive,
			&f.Notes,
			&f.CreatedAt,
			&f.UpdatedAt,
			&f.DeviceCount,
		); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan flow row"})
			return
		}
		flows = append(flows, &f)
	}
	if err = rows.Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error iterating flow rows"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"flows": flows})
}

type UpdateFlowInput struct {
	Name     *string `json:"name"`
	Config   *string `json:"config"`
	IsActive *bool   `json:"isActive"`
	Notes    *string `json:"notes"`
}

// UpdateFlow is the handler for PATCH /v1/flows/:id.
func (h *Handlers) UpdateFlow(c *gin.Context) {
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)
	flowID := c.Param("id")

	var input UpdateFlowInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if input.Config != nil && !json.Valid([]byte(*input.Config)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Flow config must be valid JSON"})
		return
	}

	// Renaming a flow regenerates its slug.
	var newSlug *string
	if input.Name != nil {
		s := slug.Make(*input.Name)
		newSlug = &s
	}

	query := `
		UPDATE flows
		SET name = COALESCE(?, name),
		    slug = COALESCE(?, slug),
		    config = COALESCE(?, config),
		    is_active = COALESCE(?, is_active),
		    notes = COALESCE(?, notes),
		    updated_at = ?
		WHERE id = ? AND user_id = ?`

	result, err := h.DB.Exec(query,
		input.Name,
		newSlug,
		input.Config,
		input.IsActive,
		input.Notes,
		time.Now(),
		flowID,
		userID,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update flow"})
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Flow not found or you do not have permission to update it"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Flow updated"})
}

// DeleteFlow is the handler for DELETE /v1/flows/:id.
// Device assignments go with it.
func (h *Handlers) DeleteFlow(c *gin.Context) {
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)
	flowID := c.Param("id")

	tx, err := h.DB.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction"})
		return
	}
	defer tx.Rollback()

	result, err := tx.Exec("DELETE FROM flows WHERE id = ? AND user_id = ?", flowID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete flow"})
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Flow not found or you do not have permission to delete it"})
		return
	}

	if _, err := tx.Exec("DELETE FROM device_flows WHERE flow_id = ?", flowID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove flow assignments"})
		return
	}

	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Flow deleted"})
}

type AssignFlowInput struct {
	DeviceID int64 `json:"deviceId" binding:"required"`
}

// AssignFlowToDevice is the handler for POST /v1/flows/:id/assign.
// Both the flow and the device must belong to the caller.
func (h *Handlers) AssignFlowToDevice(c *gin.Context) {
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)
	flowID := c.Param("id")

	var input AssignFlowInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Ownership check for both sides of the assignment in one query.
	var ok int
	checkQuery := `
		SELECT COUNT(*)
		FROM flows f, devices d
		WHERE f.id = ? AND f.user_id = ? AND d.id = ? AND d.user_id = ?`

	if err := h.DB.QueryRow(checkQuery, flowID, userID, input.DeviceID, userID).Scan(&ok); err != nil || ok == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Flow or device not found"})
		return
	}

	query := `
		INSERT INTO device_flows (device_id, flow_id, created_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE created_at = created_at`

	if _, err := h.DB.Exec(query, input.DeviceID, flowID, time.Now()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assign flow"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Flow assigned to device"})
}
