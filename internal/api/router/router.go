package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tempora/backend/config"
	"tempora/backend/internal/api/handler"
	"tempora/backend/internal/api/middleware"
	"tempora/backend/internal/model"
	"tempora/backend/pkg/jwt"
)

// maxBodyBytes 请求体上限，计时接口的请求体都很小
const maxBodyBytes = 1 << 20

// Setup 初始化并返回 Gin 路由引擎
// checker / limiter 为 nil 时对应功能降级（Redis 不可用）
func Setup(
	cfg *config.Config,
	h *handler.Handler,
	jwtMgr *jwt.Manager,
	checker middleware.TokenChecker,
	limiter middleware.RateLimiter,
	db *gorm.DB,
	logger *zap.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.BodyLimit(maxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", healthCheck(db))

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块（无需认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", h.Auth.Login)
			auth.POST("/refresh", h.Auth.RefreshToken)
		}

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr, checker, logger))
		{
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.GET("/auth/me", h.Auth.GetCurrentUser)

			// 计时模块
			timer := authorized.Group("/timer")
			{
				timer.GET("", h.Timer.GetState)
				timer.GET("/events", h.Timer.Events)
				// 可见性随标签页切换频繁上报，不计入限流
				timer.PUT("/visibility", h.Timer.SetVisibility)

				// 写操作按用户限流
				cmds := timer.Group("")
				cmds.Use(middleware.RateLimit(limiter, cfg.Server.RateLimit.Limit, cfg.Server.RateLimit.Window))
				{
					cmds.POST("/refresh", h.Timer.Refresh)
					cmds.POST("/clock-in", h.Timer.ClockIn)
					cmds.POST("/clock-out", h.Timer.ClockOut)
					cmds.POST("/pause", h.Timer.TogglePause)
					cmds.POST("/zombie/keep", h.Timer.KeepZombie)
					cmds.POST("/zombie/fix", h.Timer.FixZombie)
				}
			}

			// 计时记录
			authorized.GET("/time-entries", h.TimeEntry.List)

			// 项目与任务：成员只读，写操作仅 owner/admin
			projects := authorized.Group("/projects")
			{
				projects.GET("", h.Project.ListProjects)
				projects.GET("/:id/tasks", h.Project.ListTasks)

				manage := projects.Group("")
				manage.Use(middleware.RoleAuth(model.RoleOwner, model.RoleAdmin))
				{
					manage.POST("", h.Project.CreateProject)
					manage.PUT("/:id", h.Project.UpdateProject)
					manage.POST("/:id/archive", h.Project.ArchiveProject)
					manage.POST("/:id/tasks", h.Project.CreateTask)
					manage.PUT("/:id/tasks/:task_id", h.Project.UpdateTask)
				}
			}

			// 报表（成员仅可见本人数据，由 Service 层收敛）
			reports := authorized.Group("/reports")
			reports.Use(middleware.RoleAuth(model.RoleOwner, model.RoleAdmin, model.RoleMember))
			{
				reports.GET("", h.Report.GetReport)
				reports.GET("/export", h.Report.ExportReport)
			}
		}
	}

	return r
}

// healthCheck 存活检查，附带数据库连通性
func healthCheck(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "up"})
	}
}
