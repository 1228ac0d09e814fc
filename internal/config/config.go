package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr    string `yaml:"listen_addr"`
	Port          string `yaml:"port"`
	DatabaseURL   string `yaml:"database_url"`
	SessionSecret string `yaml:"session_secret"`
	GinMode       string `yaml:"gin_mode"`
	Timezone      string `yaml:"timezone"`

	// BaaSJWTSecret 用于校验托管认证服务签发的 access token（HS256）。
	BaaSJWTSecret string `yaml:"baas_jwt_secret"`

	AllowedOrigins     []string `yaml:"allowed_origins"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	LogLevel      string `yaml:"log_level"`
	LogPath       string `yaml:"log_path"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`
	LogCompress   bool   `yaml:"log_compress"`

	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	SMTPFrom     string `yaml:"smtp_from"`
	SMTPFromName string `yaml:"smtp_from_name"`

	FCMServiceAccount string `yaml:"fcm_service_account"`

	AIProvider       string `yaml:"ai_provider"`
	OpenAIAPIKey     string `yaml:"openai_api_key"`
	DeepSeekAPIKey   string `yaml:"deepseek_api_key"`
	OpenAIModel      string `yaml:"openai_model"`
	DeepSeekModel    string `yaml:"deepseek_model"`
	LeadScoringAI    bool   `yaml:"lead_scoring_ai"`
	NotifyBatchSize  int    `yaml:"notify_batch_size"`
	NotifyConcurrent int    `yaml:"notify_concurrency"`

	NotifyBatchDelay time.Duration `yaml:"notify_batch_delay"`

	SuperRootUserName string `yaml:"super_root_user_name"`
	SuperRootPassword string `yaml:"super_root_password"`
}

// Load 读取 CONFIG_FILE 指定的 YAML（可选），补齐默认值后再由环境变量覆盖。
func Load() (AppConfig, error) {
	var cfg AppConfig

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return AppConfig{}, err
		}
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = fmt.Sprintf(":%s", cfg.Port)
	}

	return cfg, nil
}

// Location 返回业务日期使用的时区，配置非法时回退到 time.Local。
func (c AppConfig) Location() *time.Location {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

// RedisEnabled 表示是否配置了 Redis。
func (c AppConfig) RedisEnabled() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
}

func loadYAML(path string, cfg *AppConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "shepherd.db"
	}
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = "shepherd-dev-secret"
	}
	if cfg.GinMode == "" {
		cfg.GinMode = "release"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = 120
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if cfg.AIProvider == "" {
		cfg.AIProvider = "openai"
	}
	if cfg.NotifyBatchSize == 0 {
		cfg.NotifyBatchSize = 50
	}
	if cfg.NotifyConcurrent == 0 {
		cfg.NotifyConcurrent = 4
	}
	if cfg.NotifyBatchDelay == 0 {
		cfg.NotifyBatchDelay = time.Second
	}
}

func applyEnv(cfg *AppConfig) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.SessionSecret, "SESSION_SECRET")
	setString(&cfg.GinMode, "GIN_MODE")
	setString(&cfg.Timezone, "TIMEZONE")
	setString(&cfg.BaaSJWTSecret, "BAAS_JWT_SECRET")

	if raw := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); raw != "" {
		cfg.AllowedOrigins = splitList(raw)
	}
	setInt(&cfg.RateLimitPerMinute, "RATE_LIMIT_PER_MINUTE")

	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.RedisDB, "REDIS_DB")

	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogPath, "LOG_PATH")
	setInt(&cfg.LogMaxSizeMB, "LOG_MAX_SIZE_MB")
	setInt(&cfg.LogMaxBackups, "LOG_MAX_BACKUPS")
	setInt(&cfg.LogMaxAgeDays, "LOG_MAX_AGE_DAYS")
	setBool(&cfg.LogCompress, "LOG_COMPRESS")

	setString(&cfg.SMTPHost, "SMTP_HOST")
	setInt(&cfg.SMTPPort, "SMTP_PORT")
	setString(&cfg.SMTPUsername, "SMTP_USERNAME")
	setString(&cfg.SMTPPassword, "SMTP_PASSWORD")
	setString(&cfg.SMTPFrom, "SMTP_FROM")
	setString(&cfg.SMTPFromName, "SMTP_FROM_NAME")

	setString(&cfg.FCMServiceAccount, "FCM_SERVICE_ACCOUNT")

	setString(&cfg.AIProvider, "AI_PROVIDER")
	setString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.DeepSeekAPIKey, "DEEPSEEK_API_KEY")
	setString(&cfg.OpenAIModel, "OPENAI_MODEL")
	setString(&cfg.DeepSeekModel, "DEEPSEEK_MODEL")
	setBool(&cfg.LeadScoringAI, "LEAD_SCORING_AI")

	setInt(&cfg.NotifyBatchSize, "NOTIFY_BATCH_SIZE")
	setInt(&cfg.NotifyConcurrent, "NOTIFY_CONCURRENCY")
	if raw := strings.TrimSpace(os.Getenv("NOTIFY_BATCH_DELAY")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.NotifyBatchDelay = d
		}
	}

	setString(&cfg.SuperRootUserName, "SUPER_ROOT_USER_NAME")
	setString(&cfg.SuperRootPassword, "SUPER_ROOT_PASSWORD")
}

func setString(dst *string, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	if v, err := strconv.Atoi(raw); err == nil {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	if v, err := strconv.ParseBool(raw); err == nil {
		*dst = v
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
