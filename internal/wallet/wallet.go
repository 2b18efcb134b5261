package wallet

import (
	"database/sql"
	"fmt"
	"time"
)

// Querier defines a common interface for QueryRow,
// which is implemented by both *sql.DB and *sql.Tx.
// This allows the balance helper to be used in or out of a transaction.
type Querier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

// GetBalance calculates a user's current balance as the SUM of their
// ledger rows. A user with no transactions has a balance of 0.
func GetBalance(q Querier, userID int64) (float64, error) {
	var balance sql.NullFloat64

	query := "SELECT SUM(amount) FROM wallet_transactions WHERE user_id = ?"

	err := q.QueryRow(query, userID).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0.0, nil
		}
		return 0.0, err
	}

	// SUM(NULL) is NULL, so treat as 0.
	if !balance.Valid {
		return 0.0, nil
	}

	return balance.Float64, nil
}

// balanceForUpdate reads the current balance while holding row locks on the
// user's ledger, so no concurrent writer can append between this read and a
// following insert in the same transaction.
func balanceForUpdate(tx *sql.Tx, userID int64) (float64, error) {
	var balance sql.NullFloat64
	err := tx.QueryRow("SELECT SUM(amount) FROM wallet_transactions WHERE user_id = ? FOR UPDATE", userID).Scan(&balance)
	if err != nil && err != sql.ErrNoRows {
		return 0.0, fmt.Errorf("failed to get balance for update: %w", err)
	}
	return balance.Float64, nil
}

// appendRow inserts a single ledger row with a pre-computed running balance.
func appendRow(tx *sql.Tx, userID int64, txType string, amount float64, newBalance float64, notes string) error {
	query := `
		INSERT INTO wallet_transactions
		(user_id, type, status, amount, balance_after, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := tx.Exec(query, userID, txType, "completed", amount, newBalance, notes, time.Now())
	if err != nil {
		return fmt.Errorf("failed to add wallet transaction: %w", err)
	}

	return nil
}

// AddTransaction appends a new ledger row. This is the *only* function that
// should be used to modify a balance, and it MUST be called from within a
// database transaction so the FOR UPDATE read and the insert are atomic.
func AddTransaction(tx *sql.Tx, userID int64, txType string, amount float64, notes string) error {
	// 1. Lock the user's ledger rows and read the current balance.
	currentBalance, err := balanceForUpdate(tx, userID)
	if err != nil {
		return err
	}

	// 2. Append the row with the running balance.
	return appendRow(tx, userID, txType, amount, currentBalance+amount, notes)
}

// Charge debits amount from the user's wallet after verifying the balance
// covers it. The funds check runs against the locked balance, so a debit
// committed by a concurrent transaction cannot slip in between the check
// and the insert. Returns an error without inserting if funds are
// insufficient.
func Charge(tx *sql.Tx, userID int64, txType string, amount float64, notes string) error {
	if amount <= 0 {
		return fmt.Errorf("charge amount must be positive, got %.2f", amount)
	}

	// 1. Lock the ledger before checking. An unlocked read here would let
	// two concurrent charges both pass against the same stale balance.
	balance, err := balanceForUpdate(tx, userID)
	if err != nil {
		return fmt.Errorf("failed to check balance: %w", err)
	}
	if balance < amount {
		return ErrInsufficientFunds
	}

	// 2. Append the debit against the balance we hold the lock on.
	return appendRow(tx, userID, txType, -amount, balance-amount, notes)
}

// ErrInsufficientFunds is returned by Charge when the wallet cannot cover
// the requested amount.
var ErrInsufficientFunds = fmt.Errorf("insufficient wallet balance")
