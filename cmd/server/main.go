// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mind-tutor-go/internal/config"
	"mind-tutor-go/internal/handler"
	"mind-tutor-go/internal/middleware"
	"mind-tutor-go/internal/model"
	"mind-tutor-go/internal/repository"
	"mind-tutor-go/internal/service"
	"mind-tutor-go/pkg/database"
	"mind-tutor-go/pkg/es"
	"mind-tutor-go/pkg/kafka"
	"mind-tutor-go/pkg/llm"
	"mind-tutor-go/pkg/log"
	"mind-tutor-go/pkg/storage"
	"mind-tutor-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、MinIO 与 Elasticsearch
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := database.DB.AutoMigrate(
		&model.User{},
		&model.Conversation{},
		&model.QuizResult{},
		&model.UserActivityStat{},
	); err != nil {
		log.Fatal("数据库迁移失败", err)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.DB)
	messageRepo := repository.NewMessageRepository(es.ESClient, cfg.Elasticsearch.MessageIndex)
	quizRepo := repository.NewQuizRepository(es.ESClient, cfg.Elasticsearch.QuizIndex, database.DB)
	statRepo := repository.NewStatRepository(database.DB)
	localCache := repository.NewRedisLocalCache(database.RDB, cfg.Sync.CacheTTL())

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	llmClient := llm.NewClient(cfg.LLM)
	userService := service.NewUserService(userRepo, jwtManager)
	conversationService := service.NewConversationService(conversationRepo, messageRepo, localCache)
	syncService := service.NewSyncService(messageRepo, localCache, retryPolicyFromConfig(cfg.Sync))
	chatService := service.NewChatService(llmClient, syncService)
	quizService := service.NewQuizService(llmClient, quizRepo)
	mindmapService := service.NewMindmapService(llmClient)
	analyticsService := service.NewAnalyticsService(statRepo)

	// 6. 启动后台 Kafka 消费者，聚合学习活动事件
	go kafka.StartConsumer(cfg.Kafka, analyticsService)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", handler.NewUserHandler(userService).Register)
			users.POST("/login", handler.NewUserHandler(userService).Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", handler.NewUserHandler(userService).GetProfile)
				authed.POST("/logout", handler.NewUserHandler(userService).Logout)
			}
		}

		// Conversation 路由组，需要认证
		conversations := apiV1.Group("/conversations")
		conversations.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			convHandler := handler.NewConversationHandler(conversationService)
			conversations.POST("", convHandler.Create)
			conversations.GET("", convHandler.List)
			conversations.DELETE("/:conversationId", convHandler.Delete)
		}

		// Sync 路由组：客户端与消息存储之间的同步协议
		syncGroup := apiV1.Group("/sync")
		syncGroup.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			syncHandler := handler.NewSyncHandler(syncService, conversationService)
			syncGroup.POST("/:conversationId", syncHandler.Save)
			syncGroup.GET("/:conversationId", syncHandler.Load)
		}

		// Quiz 路由组，需要认证
		quiz := apiV1.Group("/quiz")
		quiz.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			quizHandler := handler.NewQuizHandler(quizService)
			quiz.POST("/generate", quizHandler.Generate)
			quiz.POST("/results", quizHandler.SubmitResult)
			quiz.GET("/results", quizHandler.ListResults)
		}

		// Mindmap 路由组，需要认证
		mindmap := apiV1.Group("/mindmap")
		mindmap.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			mindmap.POST("/from-speech", handler.NewMindmapHandler(mindmapService).FromSpeech)
		}

		// Analytics 路由组，需要认证
		analytics := apiV1.Group("/analytics")
		analytics.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			analytics.GET("/summary", handler.NewAnalyticsHandler(analyticsService).Summary)
		}

		// Chat 路由 (WebSocket)，token 在路径中
		r.GET("/chat/:token", handler.NewChatHandler(chatService, conversationService, userService, jwtManager).Handle)
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}

// retryPolicyFromConfig 从配置构造加载重试策略，缺省回落到 1s/3x/3 次。
func retryPolicyFromConfig(cfg config.SyncConfig) service.RetryPolicy {
	policy := service.DefaultRetryPolicy
	if cfg.LoadMaxAttempts > 0 {
		policy.MaxAttempts = cfg.LoadMaxAttempts
	}
	if cfg.LoadBaseDelayMs > 0 {
		policy.BaseDelay = time.Duration(cfg.LoadBaseDelayMs) * time.Millisecond
	}
	if cfg.LoadMultiplier > 0 {
		policy.Multiplier = cfg.LoadMultiplier
	}
	return policy
}
