package handlers

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, method, path, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set("userID", int64(1))
	return c, w
}

func newTestHandlers(t *testing.T) (*Handlers, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Handlers{DB: db}, mock
}

func TestActivatePackage_RejectsNonPending(t *testing.T) {
	h, mock := newTestHandlers(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT usp.package_id, usp.status, sp.credits_included, sp.duration_days, sp.name")).
		WithArgs("9", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"package_id", "status", "credits_included", "duration_days", "name"}).
			AddRow(2, "active", 500.0, 30, "Starter"))

	c, w := newTestContext(t, http.MethodPost, "/v1/packages/activate/9", "")
	c.Params = gin.Params{{Key: "id", Value: "9"}}

	h.ActivatePackage(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Only a pending package can be activated")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivatePackage_GrantsCreditsOnActivation(t *testing.T) {
	h, mock := newTestHandlers(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT usp.package_id, usp.status, sp.credits_included, sp.duration_days, sp.name")).
		WithArgs("9", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"package_id", "status", "credits_included", "duration_days", "name"}).
			AddRow(2, "pending", 500.0, 30, "Starter"))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_service_packages")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "9", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT SUM(amount)")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"SUM(amount)"}).AddRow(nil))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallet_transactions")).
		WithArgs(int64(1), "topup", "completed", 500.0, 500.0, `Credits from package "Starter"`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs(int64(1), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	c, w := newTestContext(t, http.MethodPost, "/v1/packages/activate/9", "")
	c.Params = gin.Params{{Key: "id", Value: "9"}}

	h.ActivatePackage(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Package activated")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivatePackage_LosesConcurrentRace(t *testing.T) {
	h, mock := newTestHandlers(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT usp.package_id, usp.status, sp.credits_included, sp.duration_days, sp.name")).
		WithArgs("9", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"package_id", "status", "credits_included", "duration_days", "name"}).
			AddRow(2, "pending", 500.0, 30, "Starter"))

	mock.ExpectBegin()
	// Another request activated it between the read and the update. The
	// guarded UPDATE matches nothing, so no credits are granted.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_service_packages")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "9", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	c, w := newTestContext(t, http.MethodPost, "/v1/packages/activate/9", "")
	c.Params = gin.Params{{Key: "id", Value: "9"}}

	h.ActivatePackage(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
