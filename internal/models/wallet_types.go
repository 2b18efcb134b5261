package models

import (
	"database/sql"
	"time"
)

// Transaction types recorded in the 'wallet_transactions' ledger.
const (
	TxTypeTopup            = "topup"
	TxTypeGenerationCharge = "generation_charge"
	TxTypeGenerationRefund = "generation_refund"
	TxTypePackagePurchase  = "package_purchase"
)

// WalletTransaction is the model for the 'wallet_transactions' table.
// The ledger is append-only; a user's balance is the SUM of their rows.
type WalletTransaction struct {
	ID           int64          `json:"id" db:"id"`
	UserID       int64          `json:"userId" db:"user_id"`
	Type         string         `json:"type" db:"type"`
	Status       string         `json:"status" db:"status"`
	Amount       float64        `json:"amount" db:"amount"` // Positive (credit) or negative (charge)
	BalanceAfter float64        `json:"balanceAfter" db:"balance_after"`
	Notes        sql.NullString `json:"notes,omitempty" db:"notes"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
}
