package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Pipeline PipelineConfig
}

type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
}

type JWTConfig struct {
	SecretKey string
}

type PipelineConfig struct {
	SimilarityWindowDays  int
	PerformanceWindowDays int
	ProfileWindowDays     int
	AttributionWindowDays int
	ServedEventCap        int
	PrivacyLevel          string
	// AES key for deriving anonymous profile ids; must be 16/24/32 bytes.
	PseudonymKey string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, errors.New("invalid redis database")
	}

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Cartlift Pipeline"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "cartlift"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			RedisHost:     getEnv("REDIS_HOST", "localhost"),
			RedisPort:     getEnv("REDIS_PORT", "6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       redisDB,
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", ""),
		},
		Pipeline: PipelineConfig{
			SimilarityWindowDays:  getEnvInt("SIMILARITY_WINDOW_DAYS", 90),
			PerformanceWindowDays: getEnvInt("PERFORMANCE_WINDOW_DAYS", 30),
			ProfileWindowDays:     getEnvInt("PROFILE_WINDOW_DAYS", 30),
			AttributionWindowDays: getEnvInt("ATTRIBUTION_WINDOW_DAYS", 7),
			ServedEventCap:        getEnvInt("SERVED_EVENT_CAP", 100),
			PrivacyLevel:          getEnv("PRIVACY_LEVEL", "standard"),
			PseudonymKey:          getEnv("PROFILE_PSEUDONYM_KEY", ""),
		},
	}

	if cfg.JWT.SecretKey == "" {
		return nil, errors.New("missing jwt secret")
	}

	if cfg.Database.Password == "" {
		return nil, errors.New("missing database password")
	}

	switch len(cfg.Pipeline.PseudonymKey) {
	case 16, 24, 32:
	default:
		return nil, errors.New("profile pseudonym key must be 16, 24 or 32 bytes")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}

	return defaultVal
}
