// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Match         MatchConfig         `mapstructure:"match"`
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

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
// NotificationTopic 承载互相喜欢/审核结果等通知事件（即发即忘）；
// RescoreTopic 承载兜底评分匹配的重评任务。
type KafkaConfig struct {
	Brokers           string `mapstructure:"brokers"`
	NotificationTopic string `mapstructure:"notification_topic"`
	RescoreTopic      string `mapstructure:"rescore_topic"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// LLMConfig 存储外部推理服务相关的配置。
type LLMConfig struct {
	APIKey         string              `mapstructure:"api_key"`
	BaseURL        string              `mapstructure:"base_url"`
	Model          string              `mapstructure:"model"`
	TimeoutSeconds int                 `mapstructure:"timeout_seconds"`
	Generation     LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// MatchConfig 存储匹配流水线的策略参数。
type MatchConfig struct {
	// CompletionThreshold 生成匹配所需的问卷完成度下限（百分比）
	CompletionThreshold int `mapstructure:"completion_threshold"`
	// AgeWindowYears 候选人年龄窗口（±年）
	AgeWindowYears int `mapstructure:"age_window_years"`
	// CandidatePoolSize 候选池上限
	CandidatePoolSize int `mapstructure:"candidate_pool_size"`
	// ScorerConcurrency 评分调用的并发上限
	ScorerConcurrency int `mapstructure:"scorer_concurrency"`
	// ExpireDays 匹配记录的有效期（天）
	ExpireDays int `mapstructure:"expire_days"`
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

	applyDefaults()
}

// applyDefaults 为未配置的策略参数填充默认值。
func applyDefaults() {
	if Conf.Match.CompletionThreshold == 0 {
		Conf.Match.CompletionThreshold = 80
	}
	if Conf.Match.AgeWindowYears == 0 {
		Conf.Match.AgeWindowYears = 5
	}
	if Conf.Match.CandidatePoolSize == 0 {
		Conf.Match.CandidatePoolSize = 50
	}
	if Conf.Match.ScorerConcurrency == 0 {
		Conf.Match.ScorerConcurrency = 4
	}
	if Conf.Match.ExpireDays == 0 {
		Conf.Match.ExpireDays = 30
	}
	if Conf.LLM.TimeoutSeconds == 0 {
		Conf.LLM.TimeoutSeconds = 30
	}
}
