package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	MySQL             MySQLConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Tap               TapConfig
	Redis             RedisConfig
	Webhooks          WebhooksConfig
	Refunds           RefundsConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName string
	APIKey      string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type TapConfig struct {
	SecretKey          string
	BaseURL            string
	WebhookSecret      string
	WebhookCallbackURL string
	HTTPTimeout        time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type WebhooksConfig struct {
	Async         bool
	QueueKey      string
	DeadLetterKey string
	MaxAttempts   int
	PopTimeout    time.Duration
	BodyLimit     string
}

type RefundsConfig struct {
	NotificationURL           string
	NotificationMaxAttempts   int32
	NotificationRetryInterval time.Duration
	NotificationHTTPTimeout   time.Duration
	RefreshStaleAfter         time.Duration
	JobBatchSize              int32
}

type JobsConfig struct {
	RefreshInterval              time.Duration
	NotificationDispatchInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "refunds-service"),
			APIKey:      getEnv("APP_API_KEY", ""),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Tap: TapConfig{
			SecretKey:          getEnv("TAP_SECRET_KEY", ""),
			BaseURL:            getEnv("TAP_BASE_URL", "https://api.tap.company/v2"),
			WebhookSecret:      getEnv("TAP_WEBHOOK_SECRET", ""),
			WebhookCallbackURL: getEnv("TAP_WEBHOOK_CALLBACK_URL", ""),
			HTTPTimeout:        getSecondsEnv("TAP_HTTP_TIMEOUT_SECONDS", 30*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Webhooks: WebhooksConfig{
			Async:         getBoolEnv("WEBHOOKS_ASYNC", false),
			QueueKey:      getEnv("WEBHOOKS_QUEUE_KEY", "refunds:webhooks"),
			DeadLetterKey: getEnv("WEBHOOKS_DEAD_LETTER_KEY", "refunds:webhooks:dead"),
			MaxAttempts:   getIntEnv("WEBHOOKS_MAX_ATTEMPTS", 3),
			PopTimeout:    getSecondsEnv("WEBHOOKS_POP_TIMEOUT_SECONDS", 5*time.Second),
			BodyLimit:     getEnv("WEBHOOKS_BODY_LIMIT", "1M"),
		},
		Refunds: RefundsConfig{
			NotificationURL:           getEnv("REFUNDS_NOTIFICATION_URL", ""),
			NotificationMaxAttempts:   int32(getIntEnv("REFUNDS_NOTIFICATION_MAX_ATTEMPTS", 10)),
			NotificationRetryInterval: getMinutesEnv("REFUNDS_NOTIFICATION_RETRY_INTERVAL_MINUTES", 5*time.Minute),
			NotificationHTTPTimeout:   getSecondsEnv("REFUNDS_NOTIFICATION_HTTP_TIMEOUT_SECONDS", 10*time.Second),
			RefreshStaleAfter:         getMinutesEnv("REFUNDS_REFRESH_STALE_AFTER_MINUTES", 15*time.Minute),
			JobBatchSize:              int32(getIntEnv("REFUNDS_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			RefreshInterval:              getMinutesEnv("REFUNDS_REFRESH_INTERVAL_MINUTES", 5*time.Minute),
			NotificationDispatchInterval: getMinutesEnv("REFUNDS_NOTIFICATION_DISPATCH_INTERVAL_MINUTES", time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
