// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Parser        ParserConfig        `mapstructure:"parser"`
	Chunking      ChunkingConfig      `mapstructure:"chunking"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// KafkaConfig 存储任务生命周期事件通知的 Kafka 配置。
// Enabled 为 false 时不创建生产者，事件通知整体退化为空操作。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey       string  `mapstructure:"api_key"`
	BaseURL      string  `mapstructure:"base_url"`
	Model        string  `mapstructure:"model"`
	Dimensions   int     `mapstructure:"dimensions"`
	MaxBatchSize int     `mapstructure:"max_batch_size"`
	TimeoutSecs  int     `mapstructure:"timeout_seconds"`
	RateLimitRPS float64 `mapstructure:"rate_limit_rps"`
	MaxRetries   int     `mapstructure:"max_retries"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey      string              `mapstructure:"api_key"`
	BaseURL     string              `mapstructure:"base_url"`
	Model       string              `mapstructure:"model"`
	TimeoutSecs int                 `mapstructure:"timeout_seconds"`
	Generation  LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// ParserConfig 配置 PDF 文本提取引擎。
// engine 取值 "native"（进程内解析）或 "tika"（外部 Tika 服务器）。
type ParserConfig struct {
	Engine        string `mapstructure:"engine"`
	TikaServerURL string `mapstructure:"tika_server_url"`
}

// ChunkingConfig 配置文本分块策略。
type ChunkingConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

// IngestConfig 配置摄取队列与工作协程池。
type IngestConfig struct {
	QueueDriver           string  `mapstructure:"queue_driver"` // "redis" 或 "memory"
	Workers               int     `mapstructure:"workers"`
	MaxAttempts           int     `mapstructure:"max_attempts"`
	VisibilityTimeoutSecs int     `mapstructure:"visibility_timeout_seconds"`
	BackoffBaseMillis     int     `mapstructure:"backoff_base_millis"`
	BackoffJitter         float64 `mapstructure:"backoff_jitter"`
	JobTimeoutSecs        int     `mapstructure:"job_timeout_seconds"`
}

// RetrievalConfig 配置检索与提示词组装。
type RetrievalConfig struct {
	TopK            int `mapstructure:"top_k"`
	MaxContextChars int `mapstructure:"max_context_chars"`
}

// VisibilityTimeout 返回可见性超时时长，未配置时回退到 60 秒。
func (c IngestConfig) VisibilityTimeout() time.Duration {
	if c.VisibilityTimeoutSecs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.VisibilityTimeoutSecs) * time.Second
}

// JobTimeout 返回单个任务的处理超时，未配置时回退到 5 分钟。
func (c IngestConfig) JobTimeout() time.Duration {
	if c.JobTimeoutSecs <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.JobTimeoutSecs) * time.Second
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}
