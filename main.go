package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quizserver/auth"           //JWTの署名鍵
	"quizserver/database"       //PostgreSQLとRedisの初期化
	"quizserver/middlewares"    //認証とメトリクス
	"quizserver/quiz"           //WebSocket接続
	"quizserver/quiz/broadcast" //ルームごとのリアルタイム通知
	"quizserver/quiz/session"   //ゲーム進行
	"quizserver/quiz/store"     //ゲームデータの永続化
	"quizserver/screens"        //ルーム操作のHTTPリクエストの処理
	"quizserver/utils"          //ロガーの初期化とCronジョブ

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

func main() {
	// .env があれば環境変数として読み込む
	_ = godotenv.Load()

	config, err := database.LoadConfig("config.json")
	if err != nil {
		panic(fmt.Sprintf("設定ファイルの読み込みに失敗しました: %v", err))
	}

	logger, err := utils.InitLogger(config.LogLevel) // ロガーの初期化
	if err != nil {
		panic(err) // 失敗した場合はプログラム停止
	}
	defer logger.Sync() // ロガーのクリーンアップ

	auth.SetSecret(config.JWTSecret)

	// 非同期でPostgreSQLとRedisの初期化
	var db *gorm.DB
	var rdb *redis.Client
	done := make(chan bool)

	go func() {
		var err error
		db, err = database.InitPostgreSQL(config, logger)
		if err != nil {
			logger.Fatal("PostgreSQLの初期化に失敗しました", zap.Error(err))
		}
		if err := database.AutoMigrate(db); err != nil {
			logger.Fatal("マイグレーションに失敗しました", zap.Error(err))
		}
		done <- true
	}()

	go func() {
		var err error
		rdb, err = database.InitRedis(config, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Redis", zap.Error(err))
		}
		done <- true
	}()

	// 2つの初期化が完了するのを待つ
	<-done
	<-done

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 複数インスタンス間の通知はRedis経由で配る
	hub := broadcast.NewHub(broadcast.DefaultBufferSize, logger)
	relay := broadcast.NewRedisRelay(hub, rdb, logger)
	go func() {
		if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Fatal("Redis relay stopped", zap.Error(err))
		}
	}()

	controller := session.NewController(store.NewGormStore(db), relay, logger)

	// クーロンスケジューラのセットアップと呼び出し
	expiry := time.Duration(config.RoomExpiryHours) * time.Hour
	scheduler, err := utils.CronCleaner(controller, config.ExpirySchedule, expiry, logger)
	if err != nil {
		logger.Fatal("Cronジョブの登録に失敗しました", zap.Error(err))
	}
	defer scheduler.Stop()

	wsHandler := quiz.NewWebSocketHandler(controller, relay, rdb, config.AllowedOrigins, logger)

	router := gin.New()
	//リクエストロガーを起動
	router.Use(gin.Recovery(), utils.RequestLogger(logger), middlewares.MetricsMiddleware())

	//CORS（Cross-Origin Resource Sharing）ポリシーを設定
	router.Use(cors.New(cors.Config{
		AllowOrigins:     config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "SessionID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	//各HTTPリクエストのルーティング
	screens.RegisterRoutes(router, controller, logger)
	router.GET("/ws", func(c *gin.Context) {
		wsHandler.HandleConnections(c.Request.Context(), c.Writer, c.Request)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	logger.Info("Starting quiz server", zap.String("addr", config.ListenAddr))
	if err := router.Run(config.ListenAddr); err != nil {
		logger.Fatal("Failed to run HTTP server", zap.Error(err))
	}
}
