package main

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"docsync/backend/config"
	"docsync/backend/internal/cache"
	"docsync/backend/internal/collab"
	"docsync/backend/internal/httpapi/handlers"
	"docsync/backend/internal/httpapi/middleware"
	"docsync/backend/internal/store"
	"docsync/backend/internal/ws"
)

func initConfig() (*config.Config, error) {
	cfg := &config.Config{}
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	// 兼容从项目根目录或 backend 目录启动
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	gormDB, err := gorm.Open(gormmysql.Open(cfg.Mysql.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := gormDB.AutoMigrate(&store.Document{}, &store.DocumentCollaborator{}); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}
	// 快照/用户存储走原生 database/sql，从 gorm 拿底层连接池
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatalf("Failed to get sql.DB: %v", err)
	}
	defer sqlDB.Close()

	// === 初始化 Kafka Producer ===
	kafkaCfg := sarama.NewConfig()
	// SyncProducer 必须开启 Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		log.Fatalf("Failed to connect kafka: %v", err)
	}
	defer producer.Close()

	documentStore := store.NewDocumentStore(gormDB)
	snapshotStore := store.NewSnapshotStore(sqlDB)
	if err := snapshotStore.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to create snapshot table: %v", err)
	}
	userStore := store.NewUserStore(sqlDB)

	presenceCache := cache.NewRedisPresence(rdb)
	hub := ws.NewHub(presenceCache)
	rooms := collab.NewRooms()
	svc := collab.NewService(documentStore, snapshotStore)

	// Kafka 本地队列 + worker 重试发送，编辑事件的尽力而为变更流
	kafkaSem := collab.NewSemaphoreControl(collab.DefaultMaxSemaphore)
	saveSem := collab.NewSemaphoreControl(collab.DefaultMaxSemaphore)
	dispatcher := collab.NewKafkaDispatcher(
		producer,
		cfg.Kafka.Topic,
		kafkaSem,
		collab.KafkaDispatcherOptions{
			QueueSize:   10_000,
			Workers:     4,
			MaxRetry:    3,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  1 * time.Second,
		},
	)

	saver := collab.NewAutosaver(svc, cfg.QuietPeriod())
	defer saver.Close()
	// 防抖保存失败（权限/文档不存在）回告发起编辑的用户；瞬时错误静默
	saver.OnError = func(docID string, userID uint64, err error) {
		hub.NotifyUser(docID, userID, ws.ServerMessage{
			Type:       "save-error",
			DocumentID: docID,
			Code:       ws.SaveErrorCode(err),
		})
	}

	manager := ws.NewManager(hub, rooms, svc, saver, dispatcher, saveSem)
	docHandlers := handlers.NewDocumentHandlers(documentStore, userStore, svc)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		// 允许任意来源（包含 file:// 场景的 Origin: null）
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware())
	docHandlers.Register(api)
	api.GET("/ws", manager.WebSocketConnect)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	port := cfg.Running.Port
	_ = r.Run(":" + strconv.Itoa(port))
}
