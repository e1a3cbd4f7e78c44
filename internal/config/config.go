// Package config 提供应用程序的配置加载和管理功能
// 使用 TOML 格式的配置文件，支持多路径查找
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// MainConfig 主配置，包含应用基本信息
type MainConfig struct {
	AppName string `toml:"appName"` // 应用名称，用于日志标识等
	Host    string `toml:"host"`    // 服务器监听地址，如 "0.0.0.0"
	Port    int    `toml:"port"`    // 服务器监听端口，如 8011
	Mode    string `toml:"mode"`    // 运行模式："dev" 或 "release"
}

// MysqlConfig MySQL 数据库连接配置
type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
}

// RedisConfig Redis 连接配置
// Redis 承载会话级 webhook 绑定、通知去重集合与 pending webhook 键，
// 是跨实例共享的本地持久层
type RedisConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`
	Db       int    `toml:"db"`
}

// LogConfig 日志配置，使用 lumberjack 进行日志轮转
type LogConfig struct {
	LogPath    string `toml:"logPath"`
	FileName   string `toml:"fileName"`
	MaxSize    int    `toml:"maxSize"`    // 单个日志文件最大大小（MB）
	MaxBackups int    `toml:"maxBackups"` // 保留旧日志文件的最大个数
	MaxAge     int    `toml:"maxAge"`     // 保留旧日志文件的最大天数
	Level      string `toml:"level"`      // 日志级别：debug, info, warn, error
}

// JWTConfig 应用内 JWT 认证配置（WebSocket 与聊天 API 使用）
type JWTConfig struct {
	Secret             string `toml:"secret"`             // JWT 签名密钥，建议 32 字符以上
	AccessTokenExpiry  int    `toml:"accessTokenExpiry"`  // Access Token 有效期（分钟）
	RefreshTokenExpiry int    `toml:"refreshTokenExpiry"` // Refresh Token 有效期（小时）
}

// GoogleOAuthConfig Google OAuth 配置
// 用于以 refresh token 换取新的 access token，以及 tokeninfo 校验
type GoogleOAuthConfig struct {
	ClientID     string `toml:"clientID"`
	ClientSecret string `toml:"clientSecret"`
	TokenURL     string `toml:"tokenURL"`     // 默认 https://oauth2.googleapis.com/token
	TokenInfoURL string `toml:"tokenInfoURL"` // 默认 https://oauth2.googleapis.com/tokeninfo
}

// N8NConfig 外部工作流引擎（n8n）配置
// 每个功能区各有一个静态 webhook 端点，会话级动态绑定优先于这些默认值
type N8NConfig struct {
	APIKey                 string `toml:"apiKey"`                 // 机器端点鉴权用的静态 API Key
	PlanWebhook            string `toml:"planWebhook"`            // 通用聊天（Plan Your Day）端点
	StudyGuideWebhook      string `toml:"studyGuideWebhook"`      // 学习指南问答端点
	UniversityGuideWebhook string `toml:"universityGuideWebhook"` // 升学指导端点
	IngestWebhook          string `toml:"ingestWebhook"`          // 文件摄取（RAG 上传）端点
	AuthEventWebhook       string `toml:"authEventWebhook"`       // 登录事件通知端点，可为空
	DispatchTimeout        int    `toml:"dispatchTimeout"`        // 外呼超时（秒），默认 30
	IngestTimeout          int    `toml:"ingestTimeout"`          // 单文件上传超时（秒），默认 120
}

// KafkaConfig Kafka 消息队列配置
type KafkaConfig struct {
	MessageMode string        `toml:"messageMode"` // 消息模式："channel" 或 "kafka"
	HostPort    string        `toml:"hostPort"`    // Kafka 服务器地址，如 "localhost:9092"
	EventTopic  string        `toml:"eventTopic"`  // 实时事件主题（AI 消息与通知插入）
	Partition   int           `toml:"partition"`
	Timeout     time.Duration `toml:"timeout"`
}

// CryptoConfig 令牌落库加密配置
type CryptoConfig struct {
	EncryptionKey string `toml:"encryptionKey"` // 任意长度密钥，经 HKDF 派生为 AES-256 密钥
}

// SnowflakeConfig 雪花算法配置
type SnowflakeConfig struct {
	MachineID int64 `toml:"machineId"` // 节点 ID，范围 0-1023，分布式部署时每台机器需唯一
}

// Config 应用程序总配置，聚合所有子配置
type Config struct {
	MainConfig        `toml:"mainConfig"`
	MysqlConfig       `toml:"mysqlConfig"`
	RedisConfig       `toml:"redisConfig"`
	LogConfig         `toml:"logConfig"`
	JWTConfig         `toml:"jwtConfig"`
	GoogleOAuthConfig `toml:"googleOAuthConfig"`
	N8NConfig         `toml:"n8nConfig"`
	KafkaConfig       `toml:"kafkaConfig"`
	CryptoConfig      `toml:"cryptoConfig"`
	SnowflakeConfig   `toml:"snowflakeConfig"`
}

// config 全局配置单例，延迟加载
var config *Config

// LoadConfig 从多个候选路径加载配置文件
// 按顺序尝试加载，找到第一个可用的配置文件即停止
func LoadConfig() error {
	paths := []string{
		"configs/config_local.toml", // 本地开发配置（优先）
		"configs/config.toml",
		"../../configs/config_local.toml", // 从子目录运行时的路径
		"../../configs/config.toml",
	}

	for _, path := range paths {
		if _, err := toml.DecodeFile(path, config); err == nil {
			return nil
		}
	}

	return fmt.Errorf("could not find configuration file in any of the search paths")
}

// applyDefaults 填充未配置项的默认值
func applyDefaults(c *Config) {
	if c.GoogleOAuthConfig.TokenURL == "" {
		c.GoogleOAuthConfig.TokenURL = "https://oauth2.googleapis.com/token"
	}
	if c.GoogleOAuthConfig.TokenInfoURL == "" {
		c.GoogleOAuthConfig.TokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
	}
	if c.N8NConfig.DispatchTimeout <= 0 {
		c.N8NConfig.DispatchTimeout = 30
	}
	if c.N8NConfig.IngestTimeout <= 0 {
		c.N8NConfig.IngestTimeout = 120
	}
	if c.KafkaConfig.EventTopic == "" {
		c.KafkaConfig.EventTopic = "nevermiss_events"
	}
}

// GetConfig 获取全局配置实例（单例模式）
// 首次调用时会自动加载配置文件
func GetConfig() *Config {
	if config == nil {
		config = new(Config)
		_ = LoadConfig() // 忽略加载错误，使用默认值
		applyDefaults(config)
	}
	return config
}
