package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestLoadConfigFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"db_host": "db.internal",
		"db_name": "quiz",
		"jwt_secret": "from-file",
		"room_expiry_hours": 6
	}`), 0o600))

	t.Setenv("DB_HOST", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("EXPIRY_SCHEDULE", "")
	t.Setenv("DB_NAME", "quiz_test")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example,http://b.example")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", config.DBHost)
	assert.Equal(t, "quiz_test", config.DBName)
	assert.Equal(t, "from-file", config.JWTSecret)
	assert.Equal(t, 6, config.RoomExpiryHours)
	assert.Equal(t, 3, config.RedisDB)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, config.AllowedOrigins)
	// ファイルにない項目はデフォルト値
	assert.Equal(t, ":8080", config.ListenAddr)
	assert.Equal(t, "@every 10m", config.ExpirySchedule)
}

func TestLoadConfigWithoutFileRequiresSecret(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.json")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ROOM_EXPIRY_HOURS", "")

	_, err := LoadConfig(missing)
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "env-secret")
	config, err := LoadConfig(missing)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", config.JWTSecret)
	assert.Equal(t, 24, config.RoomExpiryHours)
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"db_host": `), 0o600))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestAutoMigrateCreatesWaitingCodeIndex(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, AutoMigrate(db))
	// 2回目も失敗しない
	require.NoError(t, AutoMigrate(db))

	insert := `INSERT INTO game_rooms (category, creator_id, status, max_players, grade_band, difficulty, join_code, settings)
		VALUES ('math', 1, ?, 2, 1, 'easy', 'ABC234', '{}')`
	require.NoError(t, db.Exec(insert, "waiting").Error)
	// 待機中同士では重複できない
	assert.Error(t, db.Exec(insert, "waiting").Error)
	// 待機中でなければ同じコードを再利用できる
	assert.NoError(t, db.Exec(insert, "completed").Error)
}
