package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var SecretKey []byte

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type EmailConfig struct {
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string
	SenderEmail        string
}

func (e EmailConfig) Enabled() bool {
	return e.SenderEmail != ""
}

type ReconcilerConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

type Config struct {
	Addr          string
	PublicBaseURL string
	LogLevel      string
	LogFormat     string
	Database      DatabaseConfig
	Kafka         KafkaConfig
	Email         EmailConfig
	Reconciler    ReconcilerConfig
}

// Load reads the optional .env file and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	secret := os.Getenv("JWT_SECRET_KEY")
	if secret == "" {
		return nil, errors.New("JWT secret key not set")
	}
	SecretKey = []byte(secret)

	interval, err := time.ParseDuration(getEnvOrDefault("RECONCILE_INTERVAL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_INTERVAL: %w", err)
	}
	staleAfter, err := time.ParseDuration(getEnvOrDefault("RECONCILE_STALE_AFTER", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_STALE_AFTER: %w", err)
	}
	batchSize, err := strconv.Atoi(getEnvOrDefault("RECONCILE_BATCH_SIZE", "50"))
	if err != nil || batchSize <= 0 {
		return nil, fmt.Errorf("invalid RECONCILE_BATCH_SIZE %q", os.Getenv("RECONCILE_BATCH_SIZE"))
	}

	return &Config{
		Addr:          getEnvOrDefault("HTTP_ADDR", ":8080"),
		PublicBaseURL: strings.TrimRight(getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:     getEnvOrDefault("LOG_FORMAT", "text"),
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvOrDefault("DB_PORT", "5432"),
			User:     getEnvOrDefault("DB_USER", "local"),
			Password: getEnvOrDefault("DB_PASSWORD", "local"),
			Name:     getEnvOrDefault("DB_NAME", "restro"),
			SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnvOrDefault("KAFKA_TOPIC", "restro.order-events"),
			GroupID: os.Getenv("KAFKA_GROUP_ID"),
		},
		Email: EmailConfig{
			AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			AWSRegion:          getEnvOrDefault("AWS_REGION", "ap-south-1"),
			SenderEmail:        os.Getenv("AWS_SENDER_ADDRESS"),
		},
		Reconciler: ReconcilerConfig{
			Interval:   interval,
			StaleAfter: staleAfter,
			BatchSize:  batchSize,
		},
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
