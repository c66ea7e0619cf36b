package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gracetrack-api/internal/models"
)

var recordMockColumns = []string{"id", "church_id", "entity", "data", "lock_status", "created_by", "created_at", "updated_by", "updated_at"}

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRecordRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO records")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := &models.Record{
		ChurchID:  "church-1",
		Entity:    models.EntityFinance,
		Data:      json.RawMessage(`{"date":"2024-03-01","category":"Tithe","amountGHS":120}`),
		CreatedBy: "ama@grace.org",
	}
	require.NoError(t, repo.Create(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, models.LockStatusLocked, rec.LockStatus)

	rows := sqlmock.NewRows(recordMockColumns).
		AddRow(rec.ID, "church-1", "finance", []byte(rec.Data), "locked", "ama@grace.org", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, church_id, entity, data")).
		WithArgs("church-1", models.EntityFinance, rec.ID).
		WillReturnRows(rows)

	found, err := repo.Get(context.Background(), "church-1", models.EntityFinance, rec.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(rec.Data), string(found.Data))
	assert.Nil(t, found.UpdatedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositorySetLockStatusMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE records SET lock_status")).
		WithArgs("church-1", models.EntityMembers, "m404", models.LockStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetLockStatus(context.Background(), "church-1", models.EntityMembers, "m404", models.LockStatusPending)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryListOrdersByWhitelistedField(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	rows := sqlmock.NewRows(recordMockColumns).
		AddRow("f2", "church-1", "finance", []byte(`{"amountGHS":900}`), "locked", "a@b.org", time.Now(), nil, nil).
		AddRow("f1", "church-1", "finance", []byte(`{"amountGHS":100}`), "pending", "a@b.org", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY (data->>'amountGHS')::numeric DESC NULLS LAST")).
		WithArgs("church-1", models.EntityFinance).
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), "church-1", models.RecordFilter{
		Entity:    models.EntityFinance,
		OrderBy:   "amountGHS",
		Direction: models.SortDesc,
	})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "f2", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryListFallsBackToDefaultOrder(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY data->>'fullName' ASC NULLS LAST, created_at ASC LIMIT 5")).
		WithArgs("church-1", models.EntityMembers).
		WillReturnRows(sqlmock.NewRows(recordMockColumns))

	list, err := repo.List(context.Background(), "church-1", models.RecordFilter{
		Entity:  models.EntityMembers,
		OrderBy: "id; DROP TABLE records",
		Limit:   5,
	})
	require.NoError(t, err)
	assert.Empty(t, list)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM records")).
		WithArgs("church-1", models.EntityMembers, "m9").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "church-1", models.EntityMembers, "m9"), sql.ErrNoRows)
}
