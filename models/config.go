package models

// Config 構造体はデータベース接続やサーバーの設定情報を保持します。
type Config struct {
	DBHost     string `json:"db_host"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`
	DBName     string `json:"db_name"`
	DBSSLMode  string `json:"db_sslmode"`

	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	ListenAddr     string   `json:"listen_addr"`
	AllowedOrigins []string `json:"allowed_origins"`
	JWTSecret      string   `json:"jwt_secret"`

	// 待機中のまま放置されたルームをキャンセルするまでの時間（時間単位）
	RoomExpiryHours int    `json:"room_expiry_hours"`
	ExpirySchedule  string `json:"expiry_schedule"` // cron形式

	LogLevel string `json:"log_level"` // debug, info, warn, error
}
