package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Tracking TrackingConfig `mapstructure:"tracking"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port      int             `mapstructure:"port"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// RateLimitConfig 计时指令的限流配置（依赖 Redis，不可用时放行）
type RateLimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（Token 黑名单、限流、实时事件总线）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 认证配置
type AuthConfig struct {
	JWTSecret       string        `mapstructure:"jwt_secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TrackingConfig 计时状态机与提醒调度配置
type TrackingConfig struct {
	ZombieThreshold      time.Duration `mapstructure:"zombie_threshold"`       // 超过该时长的运行中计时视为遗忘未停止
	TickInterval         time.Duration `mapstructure:"tick_interval"`          // 提醒调度轮询间隔
	IdleReminderInterval time.Duration `mapstructure:"idle_reminder_interval"` // 空闲提醒间隔
	ChimeMinutes         []int         `mapstructure:"chime_minutes"`          // 整点/半点报时的分钟值
	Timezone             string        `mapstructure:"timezone"`               // 报时所依据的墙上时钟时区
	FixSuggestion        time.Duration `mapstructure:"fix_suggestion"`         // 修正遗忘计时时建议的结束时间偏移
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`         // 空闲计时器回收扫描间隔
	LeaseTTL             time.Duration `mapstructure:"lease_ttl"`              // 多实例下计时器归属租约有效期
}

// Location 解析报时时区，空值按 UTC 处理
func (c *TrackingConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.rate_limit.limit", 30)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "tempora")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)
	v.SetDefault("db.conn_max_idle_time", 30)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.refresh_token_ttl", "168h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracking.zombie_threshold", "12h")
	v.SetDefault("tracking.tick_interval", "1s")
	v.SetDefault("tracking.idle_reminder_interval", "15m")
	v.SetDefault("tracking.chime_minutes", []int{0, 30})
	v.SetDefault("tracking.timezone", "UTC")
	v.SetDefault("tracking.fix_suggestion", "4h")
	v.SetDefault("tracking.sweep_interval", "1m")
	v.SetDefault("tracking.lease_ttl", "30s")

	// ── 配置文件（yaml / toml 均可，由扩展名决定）──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("TEMPORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	return c.Tracking.Validate()
}

// Validate 校验计时相关配置
func (c *TrackingConfig) Validate() error {
	if c.ZombieThreshold <= 0 {
		return fmt.Errorf("配置校验失败: tracking.zombie_threshold 必须大于 0")
	}
	if c.TickInterval <= 0 || c.TickInterval > time.Minute {
		return fmt.Errorf("配置校验失败: tracking.tick_interval 必须在 (0, 1m] 之间")
	}
	if c.IdleReminderInterval <= 0 {
		return fmt.Errorf("配置校验失败: tracking.idle_reminder_interval 必须大于 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("配置校验失败: tracking.sweep_interval 必须大于 0")
	}
	// 租约每 lease_ttl/3 续期一次，续期间隔不能短于轮询间隔
	if c.LeaseTTL < 3*c.TickInterval {
		return fmt.Errorf("配置校验失败: tracking.lease_ttl 不能小于 3 倍 tick_interval")
	}
	for _, m := range c.ChimeMinutes {
		if m < 0 || m > 59 {
			return fmt.Errorf("配置校验失败: tracking.chime_minutes 取值 %d 超出 0-59", m)
		}
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("配置校验失败: tracking.timezone 无效: %w", err)
	}
	return nil
}
