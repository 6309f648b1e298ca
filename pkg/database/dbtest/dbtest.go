// Package dbtest поднимает gorm поверх go-sqlmock для тестов репозиториев.
package dbtest

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// FixedNow используется как NowFunc, чтобы аргументы с датами были предсказуемы
var FixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// New возвращает gorm.DB с postgres-диалектом и мок драйвера.
// По завершении теста проверяется, что все ожидания выполнены.
func New(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return FixedNow },
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = sqlDB.Close()
	})

	return db, mock
}
