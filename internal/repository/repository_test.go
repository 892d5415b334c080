package repository

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
)

func setupMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func dupErr(key string) error {
	return &mysql.MySQLError{Number: mysqlDuplicateEntry, Message: "Duplicate entry 'x' for key '" + key + "'"}
}

var (
	machineCols = []string{"id", "gym_id", "name", "how_to_use_video_url", "local_video_path", "safety_tips", "usage_guide", "created_at"}
	gymCols     = []string{"id", "owner_id", "name", "logo_url", "contact_info", "created_at"}
	contentCols = []string{"id", "machine_id", "language_code", "instruction_text", "safety_text", "created_at"}
	activityCol = []string{
		"id", "client_id", "machine_id", "ts",
		"m.id", "m.gym_id", "m.name", "m.video", "m.path", "m.tips", "m.guide", "m.created_at",
		"g.id", "g.owner_id", "g.name", "g.logo", "g.contact", "g.created_at",
	}
)
