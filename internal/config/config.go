package config

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Env       string `mapstructure:"env"`
	Port      int    `mapstructure:"port"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	TopicMessages string   `mapstructure:"topic_messages"`
	TopicPresence string   `mapstructure:"topic_presence"`
}

type WSConfig struct {
	PingIntervalSeconds int   `mapstructure:"ping_interval_seconds"`
	WriteTimeoutSeconds int   `mapstructure:"write_timeout_seconds"`
	MaxMessageSizeBytes int64 `mapstructure:"max_message_size_bytes"`
	SendBufferSize      int   `mapstructure:"send_buffer_size"`
}

type Config struct {
	App   AppConfig   `mapstructure:"app"`
	Mongo MongoConfig `mapstructure:"mongodb"`
	Redis RedisConfig `mapstructure:"redis"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	WS    WSConfig    `mapstructure:"ws"`

	// derived
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
}

// Load reads the config file at path and layers APP_* environment overrides
// on top. Missing file is not fatal when env supplies everything.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	applyDefaults(&c)
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.App.Port == 0 {
		c.App.Port = 8084
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = "mongodb://localhost:27017"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "helpdesk"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "ws"
	}
	if c.Kafka.TopicMessages == "" {
		c.Kafka.TopicMessages = "chat.message.sent"
	}
	if c.Kafka.TopicPresence == "" {
		c.Kafka.TopicPresence = "chat.presence.changed"
	}
	if c.WS.PingIntervalSeconds == 0 {
		c.WS.PingIntervalSeconds = 30
	}
	if c.WS.WriteTimeoutSeconds == 0 {
		c.WS.WriteTimeoutSeconds = 10
	}
	if c.WS.MaxMessageSizeBytes == 0 {
		c.WS.MaxMessageSizeBytes = 64 * 1024
	}
	if c.WS.SendBufferSize == 0 {
		c.WS.SendBufferSize = 256
	}
	c.PingInterval = time.Duration(c.WS.PingIntervalSeconds) * time.Second
	c.WriteTimeout = time.Duration(c.WS.WriteTimeoutSeconds) * time.Second
	c.RequestTimeout = 10 * time.Second
}
