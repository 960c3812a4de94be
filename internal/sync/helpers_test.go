package sync

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"stocklink/internal/database"
	"stocklink/internal/logger"
	"stocklink/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := database.New(fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db.DB
}

func newTestLogger() *logger.Logger {
	return logger.New("error")
}

func newTestConnection(t *testing.T, db *gorm.DB) *models.Connection {
	t.Helper()
	connection := &models.Connection{
		UserID: "user-1",
		Name:   "Test POS Account",
		Config: datatypes.JSONMap{
			"account_id": "acct-1",
		},
		Credentials: datatypes.JSONMap{
			"access_token": "token-1",
		},
	}
	require.NoError(t, db.Create(connection).Error)
	return connection
}
