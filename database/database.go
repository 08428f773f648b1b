package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"quizserver/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// 設定ファイルにも環境変数にも値がない場合のデフォルト
func defaultConfig() models.Config {
	return models.Config{
		DBHost:          "localhost",
		DBSSLMode:       "disable",
		RedisAddr:       "localhost:6379",
		ListenAddr:      ":8080",
		AllowedOrigins:  []string{"http://localhost:3000"},
		RoomExpiryHours: 24,
		ExpirySchedule:  "@every 10m",
		LogLevel:        "info",
	}
}

// LoadConfig loads the configuration from config.json, then applies environment overrides.
// 設定ファイルが存在しない場合はデフォルト値と環境変数のみを使う。
func LoadConfig(filename string) (models.Config, error) {
	config := defaultConfig()
	configFile, err := os.Open(filename)
	if err == nil {
		defer configFile.Close()
		jsonParser := json.NewDecoder(configFile)
		if err := jsonParser.Decode(&config); err != nil {
			return config, fmt.Errorf("設定ファイルの解析に失敗しました: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return config, err
	}

	applyEnv(&config)
	if config.JWTSecret == "" {
		return config, errors.New("jwt_secret (JWT_SECRET) is required")
	}
	return config, nil
}

func applyEnv(config *models.Config) {
	setString := func(key string, target *string) {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
	setString("DB_HOST", &config.DBHost)
	setString("DB_USER", &config.DBUser)
	setString("DB_PASSWORD", &config.DBPassword)
	setString("DB_NAME", &config.DBName)
	setString("DB_SSLMODE", &config.DBSSLMode)
	setString("REDIS_ADDR", &config.RedisAddr)
	setString("REDIS_PASSWORD", &config.RedisPassword)
	setString("LISTEN_ADDR", &config.ListenAddr)
	setString("JWT_SECRET", &config.JWTSecret)
	setString("EXPIRY_SCHEDULE", &config.ExpirySchedule)
	setString("LOG_LEVEL", &config.LogLevel)

	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			config.RedisDB = db
		}
	}
	if v := os.Getenv("ROOM_EXPIRY_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours > 0 {
			config.RoomExpiryHours = hours
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		config.AllowedOrigins = strings.Split(v, ",")
	}
}

func InitPostgreSQL(config models.Config, logger *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s dbname=%s password=%s sslmode=%s",
		config.DBHost, config.DBUser, config.DBName, config.DBPassword, config.DBSSLMode)

	const maxRetries = 3
	const retryInterval = 5 * time.Second
	var err error
	for i := 0; i <= maxRetries; i++ {
		var gormDB *gorm.DB
		gormDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err == nil {
			return gormDB, nil
		}
		logger.Error("データベース接続のリトライ", zap.Int("retry", i), zap.Error(err))
		time.Sleep(retryInterval)
	}
	return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
}

func InitRedis(config models.Config, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	// Redisへの接続テスト
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		logger.Error("Failed to connect to Redis", zap.Error(err))
		return nil, err
	}

	logger.Info("Connected to Redis", zap.String("addr", config.RedisAddr))
	return rdb, nil
}

// AutoMigrate はテーブルを作成し、待機中ルームの参加コードに部分ユニークインデックスを張る
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.GameRoom{},
		&models.GamePlayer{},
		&models.GameQuestion{},
		&models.GameAnswer{},
		&models.GameResult{},
	)
	if err != nil {
		return fmt.Errorf("テーブルのマイグレーションに失敗しました: %w", err)
	}

	// PostgreSQLとSQLiteのどちらも部分インデックスに対応している
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_waiting_join_code
		ON game_rooms (join_code) WHERE status = 'waiting' AND deleted_at IS NULL`).Error
}
