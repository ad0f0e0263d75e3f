package mq

import "fmt"

const (
	DriverRedis = "redis"
	DriverKafka = "kafka"
)

// Config selects and configures one queue driver.
type Config struct {
	// Driver is "redis" (default) or "kafka".
	Driver string      `yaml:"driver"`
	Redis  RedisConfig `yaml:"redis"`
	Kafka  KafkaConfig `yaml:"kafka"`
}

// New opens the queue selected by cfg.Driver.
func New(cfg Config) (MessageQueue, error) {
	switch cfg.Driver {
	case "", DriverRedis:
		return NewRedisQueue(cfg.Redis)
	case DriverKafka:
		return NewKafkaQueue(cfg.Kafka)
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}
