package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trihai306/agentphone-backend/internal/auth"
	"github.com/trihai306/agentphone-backend/internal/broadcast"
	"github.com/trihai306/agentphone-backend/internal/models"
)

// --- User Registration ---

// We define a struct to hold the *input* from the user.
// This is separate from our main 'models.User' struct because
// we don't want to accept an 'id' or 'role' from the user.
type RegisterUserInput struct {
	FullName string `json:"fullName" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// Register is the handler for POST /v1/auth/register.
func (h *Handlers) Register(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input RegisterUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Create User Model ---
	user := &models.User{
		Role:      "user",
		Status:    "active",
		Email:     input.Email,
		FullName:  input.FullName,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Version:   1,
	}

	// 3. --- Hash the Password ---
	var password models.Password
	if err := password.Set(input.Password); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}
	user.PasswordHash = password.Hash

	// 4. --- Save to Database ---
	query := `
		INSERT INTO users
		(role, status, email, password_hash, full_name, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := h.DB.Exec(query,
		user.Role,
		user.Status,
		user.Email,
		user.PasswordHash,
		user.FullName,
		user.CreatedAt,
		user.UpdatedAt,
		user.Version,
	)
	if err != nil {
		// The unique index on email is the usual cause here.
		c.JSON(http.StatusConflict, gin.H{"error": "Email is already registered"})
		return
	}

	id, err := result.LastInsertId()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get new user ID"})
		return
	}
	user.ID = id

	// 5. --- Notify Admin Dashboards ---
	if h.Broadcaster != nil {
		_ = h.Broadcaster.Publish(c.Request.Context(), broadcast.NewEvent(
			broadcast.ChannelAdmins,
			broadcast.EventUserRegistered,
			map[string]interface{}{
				"userId":   user.ID,
				"email":    user.Email,
				"fullName": user.FullName,
			},
		))
	}

	// 6. --- Send Success Response ---
	// Gin respects the 'json:"-"' tag on the password hash.
	c.JSON(http.StatusCreated, gin.H{
		"message": "Registration successful",
		"user":    user,
	})
}

// --- User Login ---

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login is the handler for POST /v1/auth/login.
func (h *Handlers) Login(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Find User By Email ---
	var user models.User
	query := "SELECT id, password_hash, role, status FROM users WHERE email = ?"

	err := h.DB.QueryRow(query, input.Email).Scan(
		&user.ID,
		&user.PasswordHash,
		&user.Role,
		&user.Status,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	// 3. --- Check User Status ---
	switch user.Status {
	case "suspended":
		c.JSON(http.StatusForbidden, gin.H{"error": "Your account has been suspended. Please contact support."})
		return
	case "active":
		// Continue to password check.
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unknown user status"})
		return
	}

	// 4. --- Check Password ---
	var password models.Password
	password.Hash = user.PasswordHash

	match, err := password.Matches(input.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check password"})
		return
	}
	if !match {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	// 5. --- Generate JWT ---
	token, err := auth.GenerateToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	// 6. --- Send Success Response ---
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   token,
		"user": gin.H{
			"id":   user.ID,
			"role": user.Role,
		},
	})
}

// GetMyProfile is the handler for GET /v1/me.
func (h *Handlers) GetMyProfile(c *gin.Context) {
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)

	var user models.User
	query := `
		SELECT id, role, status, email, full_name, phone_number, company_name, avatar_url, created_at, updated_at
		FROM users
		WHERE id = ?`

	err := h.DB.QueryRow(query, userID).Scan(
		&user.ID,
		&user.Role,
		&user.Status,
		&user.Email,
		&user.FullName,
		&user.PhoneNumber,
		&user.CompanyName,
		&user.AvatarURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

type UpdateProfileInput struct {
	FullName    *string `json:"fullName"`
	PhoneNumber *string `json:"phoneNumber"`
	CompanyName *string `json:"companyName"`
	AvatarURL   *string `json:"avatarUrl"`
}

// UpdateMyProfile is the handler for PATCH /v1/me.
// Only the provided fields are changed (pointers = partial update).
func (h *Handlers) UpdateMyProfile(c *gin.Context) {
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)

	var input UpdateProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	query := `
		UPDATE users
		SET full_name = COALESCE(?, full_name),
		    phone_number = COALESCE(?, phone_number),
		    company_name = COALESCE(?, company_name),
		    avatar_url = COALESCE(?, avatar_url),
		    updated_at = ?,
		    version = version + 1
		WHERE id = ?`

	_, err := h.DB.Exec(query,
		input.FullName,
		input.PhoneNumber,
		input.CompanyName,
		input.AvatarURL,
		time.Now(),
		userID,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Profile updated"})
}
