package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trihai306/agentphone-backend/internal/models"
	"github.com/trihai306/agentphone-backend/internal/wallet"
)

//
// --- Wallet Handlers ---
//

// GetMyWallet is the handler for GET /v1/wallet.
// It returns the user's current balance and transaction history.
func (h *Handlers) GetMyWallet(c *gin.Context) {
	// 1. --- Get User ID ---
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)

	// 2. --- Get Current Balance ---
	balance, err := wallet.GetBalance(h.DB, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get wallet balance"})
		return
	}

	// 3. --- Get Transaction History ---
	query := `
		SELECT id, user_id, type, status, amount, balance_after, notes, created_at
		FROM wallet_transactions
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT 100`

	rows, err := h.DB.Query(query, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get transaction history"})
		return
	}
	defer rows.Close()

	transactions := []models.WalletTransaction{}
	for rows.Next() {
		var txn models.WalletTransaction
		if err := rows.Scan(
			&txn.ID,
			&txn.UserID,
			&txn.Type,
			&txn.Status,
			&txn.Amount,
			&txn.BalanceAfter,
			&txn.Notes,
			&txn.CreatedAt,
		); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan transaction row"})
			return
		}
		transactions = append(transactions, txn)
	}
	if err = rows.Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error iterating transaction rows"})
		return
	}

	// 4. --- Send Response ---
	c.JSON(http.StatusOK, gin.H{
		"currentBalance": balance,
		"transactions":   transactions,
	})
}

// TopUpWallet handles a simulated deposit for testing/manual adjustments.
// A real deployment swaps this for a payment-gateway callback.
// Route: POST /v1/wallet/topup
func (h *Handlers) TopUpWallet(c *gin.Context) {
	userID_raw, _ := c.Get("userID")
	userID := userID_raw.(int64)

	var input struct {
		Amount float64 `json:"amount" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction"})
		return
	}
	defer tx.Rollback()

	if err := wallet.AddTransaction(tx, userID, models.TxTypeTopup, input.Amount, "Manual top-up"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record top-up"})
		return
	}

	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit"})
		return
	}

	balance, err := wallet.GetBalance(h.DB, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get wallet balance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "Top-up successful",
		"currentBalance": balance,
	})
}
