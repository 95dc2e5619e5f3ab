package persistence

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.MonitorPingsOption(true),
	)
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	require.NoError(t, err)

	return &Database{DB: gormDB}, mock
}

func TestDatabase_Ping(t *testing.T) {
	db, mock := setupMockDatabase(t)

	mock.ExpectPing()
	assert.NoError(t, db.Ping())
}

func TestDatabase_Transaction(t *testing.T) {
	t.Run("commits when the function succeeds", func(t *testing.T) {
		db, mock := setupMockDatabase(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "bills"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := db.Transaction(func(tx *gorm.DB) error {
			return tx.Exec(`UPDATE "bills" SET cycles_done = cycles_done + 1 WHERE id = $1`, "x").Error
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when the function fails", func(t *testing.T) {
		db, mock := setupMockDatabase(t)

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := db.Transaction(func(tx *gorm.DB) error {
			return assert.AnError
		})
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDatabase_Close(t *testing.T) {
	db, mock := setupMockDatabase(t)

	mock.ExpectClose()
	assert.NoError(t, db.Close())
}
