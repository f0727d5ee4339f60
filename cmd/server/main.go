package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tempora/backend/config"
	"tempora/backend/pkg/database"
	applogger "tempora/backend/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tempora",
	Short: "Tempora 计时服务",
	Long:  `Tempora 为团队成员提供上下班计时、遗忘计时检测与定时提醒。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务（默认命令）",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "执行数据库迁移",
	Long: `执行数据库迁移。

示例:
  tempora migrate            # 应用所有未执行的迁移
  tempora migrate --down 1   # 回滚最近一次迁移`,
	RunE: func(cmd *cobra.Command, args []string) error {
		down, _ := cmd.Flags().GetInt("down")
		return runMigrate(down)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径（默认查找 ./config/config.yaml）")
	migrateCmd.Flags().Int("down", 0, "回滚的迁移步数")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap 加载配置并初始化日志
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, logger, nil
}

func runMigrate(down int) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	defer sqlDB.Close()

	if down > 0 {
		return database.RollbackMigrations(sqlDB, down, logger)
	}
	return database.RunMigrations(sqlDB, logger)
}
