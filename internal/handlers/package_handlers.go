package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trihai306/agentphone-backend/internal/models"
	"github.com/trihai306/agentphone-backend/internal/wallet"
)

//
// --- Service Package Handlers ---
//

// GetPackages is the handler for GET /v1/packages.
// Only public packages are listed; hidden ones are assigned by admins.
func (h *Handlers) GetPackages(c *gin.Context) {
	query := `
		SELECT id, name, description, price, credits_included, duration_days, is_public, created_at, updated_at
		FROM service_packages
		WHERE is_public = 1
		ORDER BY price ASC`

	rows, err := h.DB.Query(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}
	defer rows.Close()

	var packages []*models.ServicePackage
	for rows.Next() {
		var p models.ServicePackage
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Description,
			&p.Price,
			&p.CreditsIncluded,
			&p.DurationDays,
			&p.IsPublic,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan package row"})
			return
		}
		packages = append(packages, &p)
	}
	if err = rows.Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error iterating package rows"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"packages": packages})
}

// PurchasePackage is the handler for POST /v1/packages/:id/purchase.
// The wallet charge, the 'pending' user package and the notification all
// commit together.
func (h *Handlers) PurchasePackage(c *gin.Context) {
	// 1. --- Get IDs ---
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)
	packageID := c.Param("id")

	// 2. --- Load the Package ---
	var pkg models.ServicePackage
	query := `
		SELECT id, name, price, credits_included, duration_days
		FROM service_packages
		WHERE id = ? AND is_public = 1`

	err := h.DB.QueryRow(query, packageID).Scan(
		&pkg.ID,
		&pkg.Name,
		&pkg.Price,
		&pkg.CreditsIncluded,
		&pkg.DurationDays,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Package not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	// 3. --- Charge + Create (one transaction) ---
	tx, err := h.DB.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction"})
		return
	}
	defer tx.Rollback()

	err = wallet.Charge(tx, userID, models.TxTypePackagePurchase, pkg.Price, fmt.Sprintf("Purchase of package %q", pkg.Name))
	if err != nil {
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "Insufficient balance"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to charge wallet"})
		return
	}

	// The package starts 'pending'; credits are granted on activation so a
	// user can stockpile packages without starting their clocks.
	insertQuery := `
		INSERT INTO user_service_packages
		(user_id, package_id, status, created_at, updated_at)
		VALUES (?, ?, 'pending', ?, ?)`

	result, err := tx.Exec(insertQuery, userID, pkg.ID, time.Now(), time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user package"})
		return
	}

	userPackageID, err := result.LastInsertId()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get new user package ID"})
		return
	}

	if err := h.AddNotification(tx, userID, fmt.Sprintf("You purchased the %s package. Activate it to start using your credits.", pkg.Name), "/packages"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add notification"})
		return
	}

	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit"})
		return
	}

	// 4. --- Send Success Response ---
	c.JSON(http.StatusCreated, gin.H{
		"message":       "Package purchased",
		"userPackageId": userPackageID,
	})
}

// ActivatePackage is the handler for POST /v1/packages/activate/:id.
// Only a 'pending' package can be activated; the guard is the WHERE clause.
// Activation grants the package credits and starts the expiry clock.
func (h *Handlers) ActivatePackage(c *gin.Context) {
	// 1. --- Get IDs ---
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)
	userPackageID := c.Param("id")

	// 2. --- Load the User Package ---
	var pkgID int64
	var status string
	var creditsIncluded float64
	var durationDays int
	var pkgName string

	query := `
		SELECT usp.package_id, usp.status, sp.credits_included, sp.duration_days, sp.name
		FROM user_service_packages usp
		JOIN service_packages sp ON sp.id = usp.package_id
		WHERE usp.id = ? AND usp.user_id = ?`

	err := h.DB.QueryRow(query, userPackageID, userID).Scan(&pkgID, &status, &creditsIncluded, &durationDays, &pkgName)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Package not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if status != "pending" {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("Only a pending package can be activated (current status: %s)", status)})
		return
	}

	// 3. --- Activate (one transaction) ---
	tx, err := h.DB.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction"})
		return
	}
	defer tx.Rollback()

	expiresAt := time.Now().AddDate(0, 0, durationDays)

	// The status is re-checked here so a concurrent double-activation loses.
	updateQuery := `
		UPDATE user_service_packages
		SET status = 'active', expires_at = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND status = 'pending'`

	result, err := tx.Exec(updateQuery, expiresAt, time.Now(), userPackageID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to activate package"})
		return
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Only a pending package can be activated"})
		return
	}

	if err := wallet.AddTransaction(tx, userID, models.TxTypeTopup, creditsIncluded, fmt.Sprintf("Credits from package %q", pkgName)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to grant package credits"})
		return
	}

	if err := h.AddNotification(tx, userID, fmt.Sprintf("Your %s package is now active.", pkgName), "/packages"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add notification"})
		return
	}

	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit"})
		return
	}

	// 4. --- Send Success Response ---
	c.JSON(http.StatusOK, gin.H{
		"message":   "Package activated",
		"expiresAt": expiresAt,
	})
}

// GetMyPackages is the handler for GET /v1/packages/mine.
func (h *Handlers) GetMyPackages(c *gin.Context) {
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)

	query := `
		SELECT usp.id, usp.user_id, usp.package_id, usp.status, usp.expires_at, usp.created_at, usp.updated_at, sp.name
		FROM user_service_packages usp
		JOIN service_packages sp ON sp.id = usp.package_id
		WHERE usp.user_id = ?
		ORDER BY usp.created_at DESC`

	rows, err := h.DB.Query(query, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}
	defer rows.Close()

	var packages []*models.UserServicePackage
	for rows.Next() {
		var p models.UserServicePackage
		if err := rows.Scan(
			&p.ID,
			&p.UserID,
			&p.PackageID,
			&p.Status,
			&p.ExpiresAt,
			&p.CreatedAt,
			&p.UpdatedAt,
			&p.PackageName,
		); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan user package row"})
			return
		}
		packages = append(packages, &p)
	}
	if err = rows.Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error iterating user package rows"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"packages": packages})
}
