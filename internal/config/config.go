package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/psds-microservice/task-service/internal/kafka"
	"github.com/psds-microservice/task-service/internal/ticket"
	"github.com/spf13/viper"
)

type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string
	// Timezone decides which month a ticket id belongs to and what "today" means in stats.
	Timezone     string
	TicketPrefix string

	// SearchServiceURL, when set, makes task writes push the task to search-service (POST /search/index/task).
	SearchServiceURL string
	KafkaBrokers     []string
	KafkaTopicTask   string

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}
}

const defaultPort = "8098"

func defaults(v *viper.Viper) {
	v.SetDefault("APP_HOST", "0.0.0.0")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_TIMEZONE", "UTC")
	v.SetDefault("TICKET_PREFIX", ticket.DefaultPrefix)
	v.SetDefault("SEARCH_SERVICE_URL", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC_TASK", "task-events")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_DATABASE", "task_service")
	v.SetDefault("DB_SSLMODE", "disable")
}

// Load reads .env files (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	v := viper.New()
	defaults(v)
	v.AutomaticEnv()
	return FromViper(v), nil
}

// FromViper builds a Config from already-populated settings.
func FromViper(v *viper.Viper) *Config {
	port := v.GetString("APP_PORT")
	if port == "" {
		port = v.GetString("HTTP_PORT")
	}
	if port == "" {
		port = defaultPort
	}
	cfg := &Config{
		AppHost:          v.GetString("APP_HOST"),
		HTTPPort:         port,
		AppEnv:           v.GetString("APP_ENV"),
		LogLevel:         strings.ToLower(v.GetString("LOG_LEVEL")),
		Timezone:         v.GetString("APP_TIMEZONE"),
		TicketPrefix:     strings.ToUpper(strings.TrimSpace(v.GetString("TICKET_PREFIX"))),
		SearchServiceURL: strings.TrimRight(v.GetString("SEARCH_SERVICE_URL"), "/"),
		KafkaBrokers:     kafka.ParseBrokers(v.GetString("KAFKA_BROKERS")),
		KafkaTopicTask:   v.GetString("KAFKA_TOPIC_TASK"),
	}
	cfg.DB.Host = v.GetString("DB_HOST")
	cfg.DB.Port = v.GetString("DB_PORT")
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASSWORD")
	cfg.DB.Database = v.GetString("DB_DATABASE")
	cfg.DB.SSLMode = v.GetString("DB_SSLMODE")
	return cfg
}

func (c *Config) Validate() error {
	if c.DB.Host == "" || c.DB.Database == "" {
		return errors.New("config: DB_HOST and DB_DATABASE are required")
	}
	if c.AppEnv == "production" && c.DB.Password == "" {
		return errors.New("config: in production DB_PASSWORD is required")
	}
	if c.TicketPrefix == "" {
		return errors.New("config: TICKET_PREFIX must not be empty")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves APP_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: APP_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func (c *Config) IsProduction() bool { return c.AppEnv == "production" }
