package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tempora/backend/internal/api/handler"
	"tempora/backend/internal/api/middleware"
	"tempora/backend/internal/api/router"
	"tempora/backend/internal/notify"
	"tempora/backend/internal/repository"
	"tempora/backend/internal/service"
	"tempora/backend/internal/tracking"
	"tempora/backend/pkg/database"
	"tempora/backend/pkg/jwt"
	"tempora/backend/pkg/redis"
)

func runServe() error {
	// 1. 加载配置 + 初始化日志
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("tracking_timezone", cfg.Tracking.Timezone),
	)

	// 2. 连接数据库并执行迁移
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Error("数据库连接失败", zap.Error(err))
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Error("数据库迁移失败", zap.Error(err))
		return err
	}

	// 3. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	// 接口变量保持为 nil 接口，避免把 nil 指针包进接口
	var (
		tokens  service.TokenStore
		checker middleware.TokenChecker
		limiter middleware.RateLimiter
		broker  notify.Broker
		lease   tracking.Lease
	)
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，Token 黑名单、限流与跨实例推送将不可用", zap.Error(err))
	} else {
		defer rdb.Close()
		tokens, checker, limiter, broker = rdb, rdb, rdb, rdb
		// 每个进程一个实例标识，同一用户的提醒只由租约持有者发出
		lease = rdb.Leases(uuid.NewString())
	}

	// 4. 实时事件中心
	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	hub := notify.NewHub(broker, logger)
	if err := hub.Start(rootCtx); err != nil {
		logger.Warn("实时事件订阅失败，仅本实例内分发", zap.Error(err))
		hub = notify.NewHub(nil, logger)
	}
	defer hub.Close()

	// 5. 计时器注册表
	loc, err := cfg.Tracking.Location()
	if err != nil {
		return err
	}
	repo := repository.NewRepository(db)
	registry := tracking.NewRegistry(tracking.Deps{
		Entries:   repo.TimeEntry,
		Pauses:    repo.Pause,
		Publisher: hub,
		Clock:     tracking.SystemClock{},
		Logger:    logger,
		Lease:     lease,
		Presence:  hub,
	}, tracking.Options{
		ZombieThreshold:      cfg.Tracking.ZombieThreshold,
		TickInterval:         cfg.Tracking.TickInterval,
		IdleReminderInterval: cfg.Tracking.IdleReminderInterval,
		ChimeMinutes:         cfg.Tracking.ChimeMinutes,
		Location:             loc,
		FixSuggestion:        cfg.Tracking.FixSuggestion,
		IdleTTL:              cfg.Auth.AccessTokenTTL,
		SweepInterval:        cfg.Tracking.SweepInterval,
		LeaseTTL:             cfg.Tracking.LeaseTTL,
	})
	registry.StartSweeper()

	// 6. 依赖注入: Repository → Service → Handler
	jwtMgr := jwt.NewManager(&cfg.Auth)
	svc := service.NewService(service.Deps{
		Repo:     repo,
		JWT:      jwtMgr,
		Registry: registry,
		Tokens:   tokens,
		Events:   hub,
		Location: loc,
		Logger:   logger,
	})
	h := handler.NewHandler(svc, logger)

	// 7. 初始化路由
	engine := router.Setup(cfg, h, jwtMgr, checker, limiter, db, logger)

	// 8. 启动 HTTP 服务器（优雅关闭）
	// 事件流为长连接，不设置写超时
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// 9. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("HTTP 服务器异常", zap.Error(err))
		registry.Close()
		return err
	}

	// 先停计时器与事件推送，SSE 连接随订阅关闭而结束
	registry.Close()
	hub.Close()
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	logger.Info("服务器已关闭")
	return nil
}
