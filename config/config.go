package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.yaml"

// Cfg 全局配置
var Cfg *Config

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	MySQL         MySQLConfig         `yaml:"mysql"`
	JWT           JWTConfig           `yaml:"jwt"`
	Model         ModelConfig         `yaml:"model"`
	Milvus        MilvusConfig        `yaml:"milvus"`
	MQ            MQConfig            `yaml:"mq"`
	KnowledgeBase KnowledgeBaseConfig `yaml:"knowledge_base"`
	Cache         CacheConfig         `yaml:"cache"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type MySQLConfig struct {
	DSN string `yaml:"dsn"`
}

type JWTConfig struct {
	SecretKey string `yaml:"secret_key"`
}

type ModelConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

type MilvusConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

type MQConfig struct {
	NameServer []string `yaml:"name_server"`
}

type KnowledgeBaseConfig struct {
	// 上传文件的落盘目录
	UploadDir string `yaml:"upload_dir"`
}

type CacheConfig struct {
	// 缓存TTL，秒
	TTLSeconds int64 `yaml:"ttl_seconds"`

	// 周期清理间隔，秒
	SweepIntervalSeconds int64 `yaml:"sweep_interval_seconds"`

	// 缓存行数上限，0表示只按TTL清理
	MaxEntries int64 `yaml:"max_entries"`
}

type RateLimitConfig struct {
	// 每个窗口允许的最大请求数，不随限流状态落库
	MaxRequests int `yaml:"max_requests"`

	// 窗口时长，秒
	WindowSeconds int64 `yaml:"window_seconds"`
}

func init() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	Cfg = cfg
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %v", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %v", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Model: ModelConfig{
			BaseURL:        "https://api.openai.com/v1",
			ChatModel:      "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
		},
		KnowledgeBase: KnowledgeBaseConfig{UploadDir: "uploads"},
		Cache: CacheConfig{
			TTLSeconds:           3600,
			SweepIntervalSeconds: 300,
			MaxEntries:           1000,
		},
		RateLimit: RateLimitConfig{
			MaxRequests:   10,
			WindowSeconds: 60,
		},
	}
}

// 密钥类配置允许用环境变量覆盖文件内容
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.MySQL.DSN = v
	}
	if v := os.Getenv("JWT_SECRET_KEY"); v != "" {
		cfg.JWT.SecretKey = v
	}
	if v := os.Getenv("MODEL_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("MILVUS_API_KEY"); v != "" {
		cfg.Milvus.APIKey = v
	}
}
