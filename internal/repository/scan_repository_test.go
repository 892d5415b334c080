package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRepo_RecordScan(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewScanRepo(db)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(qScanInsert)).WithArgs(uint64(2), uint64(5), at).
		WillReturnResult(sqlmock.NewResult(99, 1))
	mock.ExpectQuery(regexp.QuoteMeta(qContentByMach)).WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows(contentCols).AddRow(1, 5, "en", "Push.", nil, at))
	mock.ExpectCommit()

	ev, content, err := repo.RecordScan(context.Background(), 2, 5, at)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), ev.ID)
	assert.Equal(t, at, ev.ScannedAt)
	require.Len(t, content, 1)
	assert.Equal(t, "en", content[0].LanguageCode)
}

func TestScanRepo_RecordScanRollsBackWhenContentFails(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewScanRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(qScanInsert)).WillReturnResult(sqlmock.NewResult(99, 1))
	mock.ExpectQuery(regexp.QuoteMeta(qContentByMach)).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	ev, content, err := repo.RecordScan(context.Background(), 2, 5, time.Now())
	require.Error(t, err)
	assert.Nil(t, ev)
	assert.Nil(t, content)
}

func TestScanRepo_ListByClient(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewScanRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(qScanCountByCli)).WithArgs(uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(21))
	mock.ExpectQuery(regexp.QuoteMeta(qScanListByCli)).WithArgs(uint64(2), 20, 20).
		WillReturnRows(sqlmock.NewRows(activityCol).
			AddRow(1, 2, 5, now, 5, 10, "Bench Press", nil, nil, nil, nil, now, 10, 1, "Iron Works", nil, nil, now))

	entries, total, err := repo.ListByClient(context.Background(), 2, 20, 20)
	require.NoError(t, err)
	assert.Equal(t, 21, total)
	require.Len(t, entries, 1)
	assert.Equal(t, "Bench Press", entries[0].Machine.Name)
	assert.Equal(t, "Iron Works", entries[0].Gym.Name)
}
