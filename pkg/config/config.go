package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Session  SessionConfig
	Pipeline PipelineConfig
	Kafka    KafkaConfig
	Export   ExportConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SessionConfig holds the windowing thresholds shared by every segmenter.
type SessionConfig struct {
	Timeout     time.Duration
	MinDuration time.Duration
}

// PipelineConfig tunes how a course run is streamed and scheduled.
type PipelineConfig struct {
	ChunkSize     int
	Prefilter     bool
	ModelCacheTTL time.Duration
	RunWorkers    int
	RunQueueSize  int
	ManifestPath  string
}

// KafkaConfig enables the optional session mirror. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
}

// ExportConfig controls where collection CSV exports land.
type ExportConfig struct {
	Dir string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Session = SessionConfig{
		Timeout:     parseDuration(v.GetString("SESSION_TIMEOUT"), 30*time.Minute),
		MinDuration: parseDuration(v.GetString("SESSION_MIN_DURATION"), 5*time.Second),
	}

	chunk := v.GetInt("CHUNK_SIZE")
	if chunk <= 0 {
		chunk = 20000
	}
	workers := v.GetInt("RUN_WORKERS")
	if workers <= 0 {
		workers = 1
	}
	cfg.Pipeline = PipelineConfig{
		ChunkSize:     chunk,
		Prefilter:     v.GetBool("COURSE_PREFILTER"),
		ModelCacheTTL: parseDuration(v.GetString("MODEL_CACHE_TTL"), time.Hour),
		RunWorkers:    workers,
		RunQueueSize:  v.GetInt("RUN_QUEUE_SIZE"),
		ManifestPath:  v.GetString("MANIFEST_PATH"),
	}

	cfg.Kafka = KafkaConfig{
		Brokers:     splitAndTrim(v.GetString("KAFKA_BROKERS")),
		TopicPrefix: v.GetString("KAFKA_TOPIC_PREFIX"),
	}

	cfg.Export = ExportConfig{Dir: v.GetString("EXPORT_DIR")}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "mooc_sessions")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SESSION_TIMEOUT", "30m")
	v.SetDefault("SESSION_MIN_DURATION", "5s")

	v.SetDefault("CHUNK_SIZE", 20000)
	v.SetDefault("COURSE_PREFILTER", true)
	v.SetDefault("MODEL_CACHE_TTL", "1h")
	v.SetDefault("RUN_WORKERS", 1)
	v.SetDefault("RUN_QUEUE_SIZE", 16)
	v.SetDefault("MANIFEST_PATH", "./runs.yaml")

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC_PREFIX", "mooc")

	v.SetDefault("EXPORT_DIR", "./exports")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
