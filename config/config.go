package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config 服务配置，全部来自环境变量（可选 .env）
type Config struct {
	Host        string
	Port        int
	Environment string
	LogLevel    string

	CORSOrigins []string
	StaticDir   string

	MaxFileSizeMB int
	MaxBatchSize  int
	ItemTimeout   time.Duration

	RateLimit RateLimitConfig
	Rembg     RembgConfig
}

// RembgConfig 去背景能力配置
type RembgConfig struct {
	Backend         string
	URL             string
	HealthURL       string
	Timeout         time.Duration
	MaxSide         int
	SkipTransparent bool
	// ReloadSchedule cron 表达式，为空时加载失败后不再重试
	ReloadSchedule string
}

// RateLimitConfig 每个 IP 的限流，RequestsPerSecond <= 0 时关闭
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Load 读取 .env（如果存在）和环境变量
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv 只读取环境变量
func FromEnv() (*Config, error) {
	var err error
	cfg := &Config{
		Host:        getEnv("HOST", "0.0.0.0"),
		Environment: strings.ToLower(getEnv("ENVIRONMENT", EnvDevelopment)),
		LogLevel:    getEnv("LOG_LEVEL", ""),
		StaticDir:   getEnv("STATIC_DIR", ""),
		Rembg: RembgConfig{
			Backend:        strings.ToLower(getEnv("REMBG_BACKEND", "http")),
			URL:            getEnv("REMBG_URL", "http://127.0.0.1:7000/api/remove"),
			HealthURL:      getEnv("REMBG_HEALTH_URL", ""),
			ReloadSchedule: getEnv("MODEL_RELOAD_SCHEDULE", ""),
		},
	}

	if cfg.Port, err = getInt("PORT", 8000); err != nil {
		return nil, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PORT out of range: %d", cfg.Port)
	}
	if cfg.MaxFileSizeMB, err = getInt("MAX_FILE_SIZE_MB", 10); err != nil {
		return nil, err
	}
	if cfg.MaxFileSizeMB < 0 {
		return nil, fmt.Errorf("MAX_FILE_SIZE_MB must not be negative, got %d", cfg.MaxFileSizeMB)
	}
	if cfg.MaxBatchSize, err = getInt("MAX_BATCH_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.MaxBatchSize <= 0 {
		return nil, fmt.Errorf("MAX_BATCH_SIZE must be positive, got %d", cfg.MaxBatchSize)
	}
	if cfg.ItemTimeout, err = getDuration("ITEM_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.CORSOrigins, err = parseOrigins(getEnv("CORS_ORIGINS", `["*"]`)); err != nil {
		return nil, err
	}

	if cfg.RateLimit.RequestsPerSecond, err = getFloat("RATE_LIMIT_RPS", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Burst, err = getInt("RATE_LIMIT_BURST", 10); err != nil {
		return nil, err
	}

	if cfg.Rembg.Timeout, err = getDuration("REMBG_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.Rembg.MaxSide, err = getInt("REMBG_MAX_SIDE", 1024); err != nil {
		return nil, err
	}
	if cfg.Rembg.SkipTransparent, err = getBool("REMBG_SKIP_TRANSPARENT", false); err != nil {
		return nil, err
	}
	switch cfg.Rembg.Backend {
	case "http", "noop":
	default:
		return nil, fmt.Errorf("REMBG_BACKEND must be http or noop, got %q", cfg.Rembg.Backend)
	}

	return cfg, nil
}

// Addr 监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaxFileSize 单个文件大小上限（字节），0 表示不限制
func (c *Config) MaxFileSize() int64 {
	return int64(c.MaxFileSizeMB) << 20
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// parseOrigins 支持 JSON 数组（["https://a.com","*"]）或逗号分隔
func parseOrigins(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	var list []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, fmt.Errorf("CORS_ORIGINS invalid: %w", err)
		}
	} else {
		list = strings.Split(raw, ",")
	}

	origins := make([]string, 0, len(list))
	for _, o := range list {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) (int, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s invalid: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%s invalid: %w", key, err)
	}
	return f, nil
}

func getBool(key string, def bool) (bool, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s invalid: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s invalid: %w", key, err)
	}
	return d, nil
}
