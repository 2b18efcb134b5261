package jobs

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trihai306/agentphone-backend/internal/broadcast"
)

func emptyGenerationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "prompt", "model", "credits_cost", "status", "reference_image_url"})
}

func emptyScenarioRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "title", "model", "credits_cost", "status"})
}

func TestSweepStuck_SettlesProcessingGeneration(t *testing.T) {
	p, mock, bus := newTestProcessor(t, &fakeProvider{name: "replicate"})

	mock.ExpectQuery(regexp.QuoteMeta("FROM ai_generations")).
		WithArgs("processing", sqlmock.AnyArg()).
		WillReturnRows(emptyGenerationRows().AddRow(30, 7, "a red fox", "replicate/flux-schnell", 25.0, "processing", nil))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE ai_generations")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(30), "processing").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT SUM(amount)")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"SUM(amount)"}).AddRow(5.0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallet_transactions")).
		WithArgs(int64(7), "generation_refund", "completed", 25.0, 30.0, "Refund for failed generation #30", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs(int64(7), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectQuery(regexp.QuoteMeta("FROM ai_generations")).
		WithArgs("pending", sqlmock.AnyArg()).
		WillReturnRows(emptyGenerationRows())
	mock.ExpectQuery(regexp.QuoteMeta("FROM ai_scenarios")).
		WithArgs("processing", sqlmock.AnyArg()).
		WillReturnRows(emptyScenarioRows())
	mock.ExpectQuery(regexp.QuoteMeta("FROM ai_scenarios")).
		WithArgs("pending", sqlmock.AnyArg()).
		WillReturnRows(emptyScenarioRows())

	p.SweepStuck(context.Background(), 2*time.Hour)
	require.NoError(t, mock.ExpectationsWereMet())

	events := bus.Events()
	require.Len(t, events, 1)
	assert.Equal(t, broadcast.EventGenerationFailed, events[0].Event)
	assert.Equal(t, 25.0, events[0].Data["refunded"])
}

// A generation whose task was dropped before any worker claimed it sits in
// 'pending' forever; the sweeper must void it and return the charge.
func TestSweepStuck_RefundsAbandonedPendingGeneration(t *testing.T) {
	p, mock, bus := newTestProcessor(t, &fakeProvider{name: "replicate"})

	mock.ExpectQuery(regexp.QuoteMeta("FROM ai_generations")).
		WithArgs("processing", sqlmock.AnyArg()).
		WillReturnRows(emptyGenerationRows())

	mock.ExpectQuery(regexp.QuoteMeta("FROM ai_generations")).
		WithArgs("pending", sqlmock.AnyArg()).
		WillReturnRows(emptyGenerationRows().AddRow(31, 8, "a blue heron", "replicate/flux-dev", 15.0, "pending", nil))

	mock.ExpectBegin()
	// The guard matches 'pending' here, so a worker claiming the row at the
	// same moment wins the race and the sweeper stands down.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE ai_generations")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(31), "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT SUM(amount)")).
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"SUM(amount)"}).AddRow(nil))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallet_transactions")).
		WithArgs(int64(8), "generation_refund", "completed", 15.0, 15.0, "Refund for failed generation #31", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs(int64(8), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectQuery(regexp.QuoteMeta("FROM ai_scenarios")).
		WithArgs("processing", sqlmock.AnyArg()).
		WillReturnRows(emptyScenarioRows())
	mock.ExpectQuery(regexp.QuoteMeta("FROM ai_scenarios")).
		WithArgs("pending", sqlmock.AnyArg()).
		WillReturnRows(emptyScenarioRows())

	p.SweepStuck(context.Background(), 2*time.Hour)
	require.NoError(t, mock.ExpectationsWereMet())

	events := bus.Events()
	require.Len(t, events, 1)
	assert.Equal(t, broadcast.EventGenerationFailed, events[0].Event)
	assert.Equal(t, 15.0, events[0].Data["refunded"])
}

func TestSweepStuck_RefundsAbandonedPendingScenario(t *testing.T) {
	p, mock, bus := newTestProcessor(t, &fakeProvider{name: "kling"})

	mock.ExpectQuery(regexp.QuoteMeta("FROM ai_generations")).
		WithArgs("processing", sqlmock.AnyArg()).
		WillReturnRows(emptyGenerationRows())
	mock.ExpectQuery(regexp.QuoteMeta("FROM ai_generations")).
		WithArgs("pending", sqlmock.AnyArg()).
		WillReturnRows(emptyGenerationRows())
	mock.ExpectQuery(regexp.QuoteMeta("FROM ai_scenarios")).
		WithArgs("processing", sqlmock.AnyArg()).
		WillReturnRows(emptyScenarioRows())

	mock.ExpectQuery(regexp.QuoteMeta("FROM ai_scenarios")).
		WithArgs("pending", sqlmock.AnyArg()).
		WillReturnRows(emptyScenarioRows().AddRow(40, 9, "City tour", "kling-v1.6-pro", 240.0, "pending"))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE ai_scenarios")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(40), "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT SUM(amount)")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"SUM(amount)"}).AddRow(60.0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallet_transactions")).
		WithArgs(int64(9), "generation_refund", "completed", 240.0, 300.0, "Refund for failed scenario #40", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs(int64(9), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	p.SweepStuck(context.Background(), 2*time.Hour)
	require.NoError(t, mock.ExpectationsWereMet())

	events := bus.Events()
	require.Len(t, events, 1)
	assert.Equal(t, broadcast.EventScenarioFailed, events[0].Event)
	assert.Equal(t, 240.0, events[0].Data["refunded"])
}

func TestSweepStuck_SkipsRowClaimedMeanwhile(t *testing.T) {
	p, mock, bus := newTestProcessor(t, &fakeProvider{name: "replicate"})

	mock.ExpectQuery(regexp.QuoteMeta("FROM ai_generations")).
		WithArgs("processing", sqlmock.AnyArg()).
		WillReturnRows(emptyGenerationRows())
	mock.ExpectQuery(regexp.QuoteMeta("FROM ai_generations")).
		WithArgs("pending", sqlmock.AnyArg()).
		WillReturnRows(emptyGenerationRows().AddRow(32, 8, "a gray wolf", "replicate/sdxl", 10.0, "pending", nil))

	// A worker claimed the row between the listing and the settle, so the
	// guard matches nothing and no refund is written.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE ai_generations")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(32), "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	mock.ExpectQuery(regexp.QuoteMeta("FROM ai_scenarios")).
		WithArgs("processing", sqlmock.AnyArg()).
		WillReturnRows(emptyScenarioRows())
	mock.ExpectQuery(regexp.QuoteMeta("FROM ai_scenarios")).
		WithArgs("pending", sqlmock.AnyArg()).
		WillReturnRows(emptyScenarioRows())

	p.SweepStuck(context.Background(), 2*time.Hour)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, bus.Events())
}
