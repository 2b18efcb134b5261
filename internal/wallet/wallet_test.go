package wallet

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sumQuery = "SELECT SUM(amount) FROM wallet_transactions WHERE user_id = ?"

func TestGetBalance_NoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(sumQuery)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"SUM(amount)"}).AddRow(nil))

	balance, err := GetBalance(db, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, balance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBalance_SumsLedger(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(sumQuery)).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"SUM(amount)"}).AddRow(37.5))

	balance, err := GetBalance(db, 5)
	require.NoError(t, err)
	assert.Equal(t, 37.5, balance)
}

func TestAddTransaction_InsertsRunningBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(sumQuery + " FOR UPDATE")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"SUM(amount)"}).AddRow(100.0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallet_transactions")).
		WithArgs(int64(5), "generation_refund", "completed", 20.0, 120.0, "refund test", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	err = AddTransaction(tx, 5, "generation_refund", 20.0, "refund test")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCharge_InsufficientFunds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(sumQuery + " FOR UPDATE")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"SUM(amount)"}).AddRow(3.0))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)

	err = Charge(tx, 5, "generation_charge", 10.0, "image generation")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCharge_DebitsNegativeAmount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	// A single locked read covers both the funds check and the running balance.
	mock.ExpectQuery(regexp.QuoteMeta(sumQuery + " FOR UPDATE")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"SUM(amount)"}).AddRow(50.0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallet_transactions")).
		WithArgs(int64(5), "generation_charge", "completed", -10.0, 40.0, "image generation", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	err = Charge(tx, 5, "generation_charge", 10.0, "image generation")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCharge_ChecksLockedBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// A concurrent debit committed after our transaction started means the
	// locked read comes back lower than any earlier unlocked snapshot. The
	// charge must be judged against the locked value and refused outright,
	// never driving the balance negative.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(sumQuery + " FOR UPDATE")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"SUM(amount)"}).AddRow(40.0))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)

	err = Charge(tx, 5, "generation_charge", 60.0, "scenario generation")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	require.NoError(t, tx.Rollback())

	// No ledger row may have been written on the refused charge.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCharge_RejectsNonPositiveAmount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)

	// Charge bails out before touching the DB.
	err = Charge(tx, 5, "generation_charge", 0, "zero")
	assert.Error(t, err)
	require.NoError(t, tx.Rollback())
}
