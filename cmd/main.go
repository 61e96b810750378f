package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	_ "github.com/go-sql-driver/mysql"
	"github.com/tamimiqbalfysal/Today-2.2.5/config"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/api/feed"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/api/user"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/middleware"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/service"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/storage"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/store/interfaces"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/store/memory"
	mysqlstore "github.com/tamimiqbalfysal/Today-2.2.5/internal/store/mysql"
	"github.com/tamimiqbalfysal/Today-2.2.5/internal/util"
	"go.uber.org/zap"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			util.Logger.Error("程序发生严重错误", zap.Any("error", r))
		}
	}()

	// 初始化配置
	config.Init()

	// 初始化日志
	util.InitLogger(config.AppConfig.LogLevel)
	defer util.Logger.Sync()

	util.Logger.Info("应用程序启动")

	// 注册自定义验证器
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("credit_amount", util.ValidateCreditAmount)
	}

	// 初始化文档存储后端
	docStore, watcher := initDocStore()

	// 初始化媒体存储后端
	mediaStorage := initMediaStorage()

	// 初始化服务和处理器
	emailService := service.NewEmailService()
	userService := service.NewUserService(docStore, emailService)
	feedService := service.NewFeedService(docStore)

	authHandler := user.NewAuthHandler(userService)
	profileHandler := user.NewProfileHandler(userService, mediaStorage)
	feedHandler := feed.NewFeedHandler(feedService, mediaStorage, watcher)

	// 初始化错误监控
	errorMonitor := middleware.NewErrorMonitor()

	// 设置 Gin 路由
	r := gin.Default()

	// 添加中间件
	r.Use(middleware.RecoveryMiddleware())
	r.Use(middleware.ErrorMonitorMiddleware(errorMonitor))

	// 配置 CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{config.AppConfig.FrontendURL}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Authorization",
	}
	r.Use(cors.New(corsConfig))

	// 调试模式下暴露错误统计接口
	if config.AppConfig.Debug {
		r.GET("/debug/errors", func(c *gin.Context) {
			c.JSON(http.StatusOK, errorMonitor.GetStats())
		})
	}

	// 本地媒体存储时提供静态文件服务
	if config.AppConfig.StorageBackend == "local" {
		r.Static("/uploads", config.AppConfig.LocalStoragePath)
	}

	// 定义 API 路由
	api := r.Group("/api")
	{
		// 用户相关路由
		api.POST("/register", authHandler.Register)
		api.POST("/login", authHandler.Login)

		// 需要认证的路由
		authorized := api.Group("/")
		authorized.Use(middleware.AuthMiddleware(userService))
		{
			authorized.POST("/logout", authHandler.Logout)
			authorized.POST("/refresh-token", authHandler.RefreshToken)
			authorized.GET("/profile", profileHandler.GetProfile)
			authorized.PUT("/profile", profileHandler.UpdateProfile)
			authorized.POST("/profile/avatar", profileHandler.UploadAvatar)
			authorized.GET("/users/:id", profileHandler.GetUserProfile)
			authorized.GET("/users/:id/posts", feedHandler.GetUserPosts)
			authorized.POST("/users/:id/follow", feedHandler.ToggleFollow)

			// 信息流相关路由
			authorized.GET("/feed", feedHandler.GetFeed)
			authorized.POST("/posts", feedHandler.CreatePost)
			authorized.GET("/posts/:id", feedHandler.GetPost)
			authorized.DELETE("/posts/:id", feedHandler.DeletePost)
			authorized.POST("/posts/:id/like", feedHandler.ToggleLike)
			authorized.POST("/posts/:id/comments", feedHandler.AddComment)
			authorized.POST("/posts/:id/challenge", feedHandler.Challenge)
			authorized.POST("/posts/:id/restore", feedHandler.Restore)

			// 通知相关路由
			authorized.GET("/notifications", feedHandler.GetNotifications)
			authorized.POST("/notifications/read", feedHandler.MarkNotificationsRead)
			authorized.GET("/notifications/stream", feedHandler.StreamNotifications)
		}
	}

	// 创建 http.Server 并优雅关闭
	srv := &http.Server{
		Addr:    config.AppConfig.ServerAddr,
		Handler: r,
	}

	go func() {
		util.Logger.Info("服务器正在启动", zap.String("addr", config.AppConfig.ServerAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Logger.Fatal("启动服务器失败", zap.Error(err))
		}
	}()

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	util.Logger.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		util.Logger.Fatal("服务器强制关闭", zap.Error(err))
	}

	util.Logger.Info("服务器已优雅关闭")
}

// initDocStore 根据配置选择文档存储后端
// 只有内存后端支持订阅接口
func initDocStore() (interfaces.DocStore, interfaces.Watcher) {
	if config.AppConfig.StoreBackend == "mysql" {
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			config.AppConfig.DBUser,
			config.AppConfig.DBPassword,
			config.AppConfig.DBHost,
			config.AppConfig.DBPort,
			config.AppConfig.DBName)

		db, err := sql.Open("mysql", dsn)
		if err != nil {
			util.Logger.Fatal("连接数据库失败", zap.Error(err))
		}

		if err := db.Ping(); err != nil {
			util.Logger.Fatal("数据库连接测试失败", zap.Error(err))
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		docStore := mysqlstore.NewDocStore(db)
		if err := docStore.EnsureSchema(context.Background()); err != nil {
			util.Logger.Fatal("初始化数据库表失败", zap.Error(err))
		}

		util.Logger.Info("使用 MySQL 文档存储")
		return docStore, nil
	}

	util.Logger.Info("使用内存文档存储")
	memStore := memory.NewStore()
	return memStore, memStore
}

// initMediaStorage 根据配置选择媒体存储后端
func initMediaStorage() storage.MediaStorage {
	switch config.AppConfig.StorageBackend {
	case "s3":
		client, err := storage.NewS3Client(config.AppConfig.S3Region, config.AppConfig.S3Bucket)
		if err != nil {
			util.Logger.Fatal("初始化 S3 存储失败", zap.Error(err))
		}
		return client
	case "gcs":
		client, err := storage.NewGCSClient(config.AppConfig.GCSBucketName, config.AppConfig.GCSCredentialsFile)
		if err != nil {
			util.Logger.Fatal("初始化 GCS 存储失败", zap.Error(err))
		}
		return client
	default:
		localStorage, err := storage.NewLocalStorage(config.AppConfig.LocalStoragePath)
		if err != nil {
			util.Logger.Fatal("初始化本地存储失败", zap.Error(err))
		}
		return localStorage
	}
}
