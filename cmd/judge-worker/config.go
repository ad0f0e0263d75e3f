package main

import (
	"fmt"
	"os"
	"time"

	"ojengine/internal/common/db"
	"ojengine/internal/common/mq"
	"ojengine/internal/common/storage"
	"ojengine/internal/judge/model"
	"ojengine/internal/judge/sandbox/engine"
	"ojengine/internal/judge/sandbox/profile"
	"ojengine/internal/judge/sandbox/runner"
	"ojengine/internal/judge/service"
	"ojengine/pkg/utils/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultTopic           = "judging"
	defaultArtifactPrefix  = "diagnostics"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// QueueConfig holds the judge queue settings.
type QueueConfig struct {
	mq.Config     `yaml:",inline"`
	Topic         string `yaml:"topic"`
	ConsumerGroup string `yaml:"consumerGroup"`
}

// JudgeConfig holds orchestrator settings.
type JudgeConfig struct {
	DefaultTimeLimitMs   int64          `yaml:"defaultTimeLimitMs"`
	DefaultMemoryLimitMB int64          `yaml:"defaultMemoryLimitMB"`
	SideChannelTimeout   time.Duration  `yaml:"sideChannelTimeout"`
	Analysis             AnalysisConfig `yaml:"analysis"`
}

// AnalysisConfig switches the post-verdict source checks. Zero values fall back to service defaults.
type AnalysisConfig struct {
	BugHints            bool    `yaml:"bugHints"`
	Similarity          bool    `yaml:"similarity"`
	SimilarityThreshold float64 `yaml:"similarityThreshold"`
	SimilarityWindow    int     `yaml:"similarityWindow"`
}

// SandboxConfig holds sandbox engine and work directory settings.
type SandboxConfig struct {
	Engine engine.Config `yaml:"engine"`
	Runner runner.Config `yaml:"runner"`
}

// ArtifactsConfig controls the diagnostic archive.
type ArtifactsConfig struct {
	Enabled bool                `yaml:"enabled"`
	Bucket  string              `yaml:"bucket"`
	Prefix  string              `yaml:"prefix"`
	MinIO   storage.MinIOConfig `yaml:"minio"`
}

// EventsConfig controls final verdict events. An empty topic disables them.
type EventsConfig struct {
	Topic string `yaml:"topic"`
}

// AppConfig holds judge-worker config.
type AppConfig struct {
	Logger    logger.Config          `yaml:"logger"`
	Server    ServerConfig           `yaml:"server"`
	Database  db.Config              `yaml:"database"`
	Queue     QueueConfig            `yaml:"queue"`
	Judge     JudgeConfig            `yaml:"judge"`
	Sandbox   SandboxConfig          `yaml:"sandbox"`
	Languages []profile.LanguageSpec `yaml:"languages"`
	Artifacts ArtifactsConfig        `yaml:"artifacts"`
	Events    EventsConfig           `yaml:"events"`
}

// loadYAML expands ${VAR} references before parsing. Variables from envFile are
// loaded first without overriding the process environment; a missing envFile is ignored.
func loadYAML(path, envFile string, out interface{}) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file failed: %w", err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path, envFile string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, envFile, &cfg); err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Queue.Driver == "" {
		cfg.Queue.Driver = mq.DriverRedis
	}
	switch cfg.Queue.Driver {
	case mq.DriverRedis:
		if cfg.Queue.Redis.Addr == "" {
			return nil, fmt.Errorf("queue redis addr is required")
		}
	case mq.DriverKafka:
		if len(cfg.Queue.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("queue kafka brokers are required")
		}
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
	if cfg.Queue.Topic == "" {
		cfg.Queue.Topic = defaultTopic
	}
	if cfg.Queue.ConsumerGroup == "" {
		cfg.Queue.ConsumerGroup = "judge-worker"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Judge.DefaultTimeLimitMs <= 0 {
		cfg.Judge.DefaultTimeLimitMs = model.DefaultTimeLimitMs
	}
	if cfg.Judge.DefaultMemoryLimitMB <= 0 {
		cfg.Judge.DefaultMemoryLimitMB = model.DefaultMemoryLimitMB
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = profile.DefaultLanguages()
	}
	if cfg.Artifacts.Enabled {
		if cfg.Artifacts.Bucket == "" {
			return nil, fmt.Errorf("artifacts bucket is required")
		}
		if cfg.Artifacts.Prefix == "" {
			cfg.Artifacts.Prefix = defaultArtifactPrefix
		}
	}
	return &cfg, nil
}

func (j JudgeConfig) analysisSettings() service.AnalysisSettings {
	return service.AnalysisSettings{
		BugHints:            j.Analysis.BugHints,
		Similarity:          j.Analysis.Similarity,
		SimilarityThreshold: j.Analysis.SimilarityThreshold,
		SimilarityWindow:    j.Analysis.SimilarityWindow,
	}
}

func (j JudgeConfig) defaultLimits() model.Limits {
	return model.Limits{TimeLimitMs: j.DefaultTimeLimitMs, MemoryLimitMB: j.DefaultMemoryLimitMB}
}
