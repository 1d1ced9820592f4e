package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"taskboard/pkg/logger"
)

// Config 描述了 taskboard 在启动阶段需要加载的全部配置。
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Events   EventsConfig   `json:"events" yaml:"events"`
	Alerting AlertingConfig `json:"alerting" yaml:"alerting"`
	Logging  logger.Config  `json:"logging" yaml:"logging"`
}

// ServerConfig 控制 API 服务的监听地址、入口页面与跨域策略。
type ServerConfig struct {
	Address                string   `json:"address" yaml:"address"`
	IndexPath              string   `json:"index_path" yaml:"index_path"`
	AllowedOrigins         []string `json:"allowed_origins" yaml:"allowed_origins"`
	ShutdownTimeoutSeconds int      `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
	MetricsEnabled         *bool    `json:"metrics_enabled" yaml:"metrics_enabled"`
}

// StorageConfig 描述任务表所在的关系型存储。
type StorageConfig struct {
	Driver                 string `json:"driver" yaml:"driver"`
	Path                   string `json:"path" yaml:"path"`
	DSN                    string `json:"dsn" yaml:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds"`
	BusyTimeoutMillis      int    `json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// EventsConfig 控制任务变更事件的投递方式。
type EventsConfig struct {
	Driver   string         `json:"driver" yaml:"driver"`
	Buffer   int            `json:"buffer" yaml:"buffer"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// RedisConfig 描述 Redis 事件列表的连接参数。
type RedisConfig struct {
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Key      string `json:"key" yaml:"key"`
}

// RabbitMQConfig 描述 RabbitMQ 事件队列的连接参数。
type RabbitMQConfig struct {
	URL     string `json:"url" yaml:"url"`
	Queue   string `json:"queue" yaml:"queue"`
	Durable bool   `json:"durable" yaml:"durable"`
}

// AlertingConfig 列出存储故障告警的 webhook 地址。
type AlertingConfig struct {
	Webhooks []string `json:"webhooks" yaml:"webhooks"`
}

const (
	envAddress       = "TASKBOARD_ADDRESS"
	envStorageDriver = "TASKBOARD_STORAGE_DRIVER"
	envStoragePath   = "TASKBOARD_STORAGE_PATH"
	envStorageDSN    = "TASKBOARD_STORAGE_DSN"
	envLogLevel      = "TASKBOARD_LOG_LEVEL"
	envEventsDriver  = "TASKBOARD_EVENTS_DRIVER"
	envBusyTimeout   = "TASKBOARD_STORAGE_BUSY_TIMEOUT_MS"
)

// Default 返回未提供配置文件时使用的配置，相对路径以当前目录为基准。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults(".")
	return cfg
}

// Load 解析指定路径的配置文件，根据扩展名选择 JSON 或 YAML。
// 当 optional 为 true 且文件不存在时返回默认配置。
func Load(path string, optional bool) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			if err := cfg.applyEnv(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &cfg)
	default:
		err = json.Unmarshal(content, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":5000"
	}
	if c.Server.IndexPath == "" {
		c.Server.IndexPath = filepath.Join(baseDir, "web", "index.html")
	} else {
		c.Server.IndexPath = resolve(baseDir, c.Server.IndexPath)
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 5
	}
	if c.Server.MetricsEnabled == nil {
		enabled := true
		c.Server.MetricsEnabled = &enabled
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(baseDir, "tasks.db")
	} else {
		c.Storage.Path = resolve(baseDir, c.Storage.Path)
	}
	if c.Storage.BusyTimeoutMillis <= 0 {
		c.Storage.BusyTimeoutMillis = 5000
	}

	c.Events.Driver = strings.ToLower(strings.TrimSpace(c.Events.Driver))
	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}
	if c.Events.Buffer <= 0 {
		c.Events.Buffer = 256
	}
	if c.Events.Redis.Key == "" {
		c.Events.Redis.Key = "taskboard:events"
	}
	if c.Events.RabbitMQ.Queue == "" {
		c.Events.RabbitMQ.Queue = "taskboard.events"
	}

	if c.Logging.Audit.Enabled && c.Logging.Audit.Path != "" {
		c.Logging.Audit.Path = resolve(baseDir, c.Logging.Audit.Path)
	}
}

// applyEnv 允许通过环境变量覆盖常用字段。
func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(envAddress)); v != "" {
		c.Server.Address = v
	}
	if v := strings.TrimSpace(os.Getenv(envStorageDriver)); v != "" {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(envStoragePath)); v != "" {
		c.Storage.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(envStorageDSN)); v != "" {
		c.Storage.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(envLogLevel)); v != "" {
		c.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv(envEventsDriver)); v != "" {
		c.Events.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(envBusyTimeout)); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return fmt.Errorf("%s 必须为正整数: %q", envBusyTimeout, v)
		}
		c.Storage.BusyTimeoutMillis = ms
	}
	return nil
}

func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
