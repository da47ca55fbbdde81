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

	"github.com/gin-gonic/gin"

	"yuanfen-go/internal/config"
	"yuanfen-go/internal/handler"
	"yuanfen-go/internal/middleware"
	"yuanfen-go/internal/model"
	"yuanfen-go/internal/repository"
	"yuanfen-go/internal/service"
	"yuanfen-go/pkg/database"
	"yuanfen-go/pkg/es"
	"yuanfen-go/pkg/kafka"
	"yuanfen-go/pkg/llm"
	"yuanfen-go/pkg/log"
	"yuanfen-go/pkg/storage"
	"yuanfen-go/pkg/token"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 与外部依赖
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducers(cfg.Kafka)

	// 建表（开发环境便利，生产以迁移脚本为准）
	if err := database.DB.AutoMigrate(
		&model.User{},
		&model.Profile{},
		&model.Match{},
		&model.Conversation{},
		&model.Message{},
	); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	// 4. 初始化 Repository
	userRepository := repository.NewUserRepository(database.DB)
	matchRepository := repository.NewMatchRepository(database.DB)
	conversationRepository := repository.NewConversationRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	llmClient := llm.NewClient(cfg.LLM)
	notifier := service.NewKafkaNotifier()

	userService := service.NewUserService(userRepository, jwtManager, cfg.Elasticsearch)
	candidateService := service.NewCandidateService(userRepository, matchRepository, es.ESClient, cfg.Elasticsearch, cfg.Match)
	scorer := service.NewLLMScorer(llmClient)
	chatService := service.NewChatService(conversationRepository, matchRepository, notifier)
	scoreTimeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	matchService := service.NewMatchService(
		userRepository,
		matchRepository,
		candidateService,
		scorer,
		chatService,
		notifier,
		cfg.Match,
		scoreTimeout,
	)
	moderationService := service.NewModerationService(matchRepository, userRepository, notifier, cfg.MinIO)

	// 6. 启动后台重评消费者（兜底评分的匹配在这里拿到正式评分）
	go kafka.StartRescoreConsumer(cfg.Kafka, matchService)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	userHandler := handler.NewUserHandler(userService)
	matchHandler := handler.NewMatchHandler(matchService)
	moderationHandler := handler.NewModerationHandler(moderationService)
	conversationHandler := handler.NewConversationHandler(chatService)

	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", userHandler.RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager))
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.PUT("/me/profile", userHandler.UpsertProfile)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		// Match 路由组，需要认证
		matches := apiV1.Group("/matches")
		matches.Use(middleware.AuthMiddleware(jwtManager))
		{
			matches.POST("/generate", matchHandler.GenerateMatches)
			matches.GET("", matchHandler.ListMatches)
			matches.POST("/:id/action", matchHandler.RecordAction)
		}

		// Conversation 路由组，需要认证
		conversations := apiV1.Group("/conversations")
		conversations.Use(middleware.AuthMiddleware(jwtManager))
		{
			conversations.GET("", conversationHandler.ListConversations)
			conversations.GET("/:id/messages", conversationHandler.ListMessages)
			conversations.POST("/:id/messages", conversationHandler.SendMessage)
			conversations.POST("/:id/read", conversationHandler.MarkRead)
			conversations.POST("/:id/block", conversationHandler.BlockConversation)
		}

		// 消息举报入口
		messages := apiV1.Group("/messages")
		messages.Use(middleware.AuthMiddleware(jwtManager))
		{
			messages.POST("/:id/report", conversationHandler.ReportMessage)
		}

		admin := apiV1.Group("/admin")
		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin.Use(middleware.AuthMiddleware(jwtManager), middleware.AdminAuthMiddleware())
		{
			admin.GET("/matches/pending", moderationHandler.PendingMatches)
			admin.POST("/matches/:id/approve", moderationHandler.ApproveMatch)
			admin.POST("/matches/:id/reject", moderationHandler.RejectMatch)
			admin.POST("/matches/batch-approve", moderationHandler.BatchApprove)
		}
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// 重评消费者是一个阻塞循环，进程退出时自然结束
	log.Info("服务已优雅关闭")
}
