package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	OSS       OSSConfig       `mapstructure:"oss"`
	Email     EmailConfig     `mapstructure:"email"`
	Queue     QueueConfig     `mapstructure:"queue"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Plans     PlansConfig     `mapstructure:"plans"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Upload    UploadConfig    `mapstructure:"upload"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// 状态轮询限流（每秒请求数 / 突发）
	PollRate  float64 `mapstructure:"poll_rate"`
	PollBurst int     `mapstructure:"poll_burst"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

// Enabled 是否配置了 OSS，未配置时报告只保存在本地
func (c *OSSConfig) Enabled() bool {
	return c.Endpoint != "" && c.AccessKeyID != ""
}

type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	AppURL   string `mapstructure:"app_url"`
}

type QueueConfig struct {
	AnalysisQueue string `mapstructure:"analysis_queue"`
	MaxWorkers    int    `mapstructure:"max_workers"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// PlansConfig 套餐限制，键为套餐名（free / growth）
type PlansConfig struct {
	Levels map[string]PlanLevel `mapstructure:"levels"`
}

type PlanLevel struct {
	MonthlyAnalyses int `mapstructure:"monthly_analyses"`
	MaxEntries      int `mapstructure:"max_entries"`
}

type BillingConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
	GraceDays     int    `mapstructure:"grace_days"`
}

type WorkerConfig struct {
	// 内部回调共享密钥，与用户会话认证无关
	CallbackSecret string `mapstructure:"callback_secret"`
}

type ExtractorConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
}

type UploadConfig struct {
	TempDir     string `mapstructure:"temp_dir"`     // 本地报告目录（未配置 OSS 时使用）
	ExpireHours int    `mapstructure:"expire_hours"` // 本地报告保留时间（小时）
}

// PlanLevel 获取套餐配置，未知套餐按 free 处理
func (c *Config) PlanLevel(plan string) PlanLevel {
	if level, ok := c.Plans.Levels[plan]; ok {
		return level
	}
	return c.Plans.Levels["free"]
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("server.poll_rate", 1.0)
	viper.SetDefault("server.poll_burst", 5)
	viper.SetDefault("queue.analysis_queue", "analysis_jobs")
	viper.SetDefault("queue.max_workers", 4)
	viper.SetDefault("billing.grace_days", 3)
	viper.SetDefault("plans.levels.free.monthly_analyses", 3)
	viper.SetDefault("plans.levels.free.max_entries", 500)
	viper.SetDefault("plans.levels.growth.monthly_analyses", 50)
	viper.SetDefault("plans.levels.growth.max_entries", 5000)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
