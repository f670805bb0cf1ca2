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

// PipelineConfig holds the tuning knobs for the daily batch run.
type PipelineConfig struct {
	LookbackDays        int
	RedemptionWindow    int
	CandidatePoolSize   int
	TopN                int
	NegativeSampleRatio int
	MinPositives        int
	RetrainWeekday      int // 0 = Sunday
	Seed                int64
	Workers             int

	PSIWarnThreshold  float64
	PSIAlertThreshold float64
	PSIBins           int
	DriftMinAlerts    int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Offer Ranking Pipeline"),
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
			Name:     getEnv("DB_NAME", "offer_rank"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			RedisHost:     getEnv("REDIS_HOST", "localhost"),
			RedisPort:     getEnv("REDIS_PORT", "6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
		},
		Pipeline: DefaultPipelineConfig(),
	}

	cfg.Pipeline.LookbackDays = getEnvInt("PIPELINE_LOOKBACK_DAYS", cfg.Pipeline.LookbackDays)
	cfg.Pipeline.CandidatePoolSize = getEnvInt("PIPELINE_POOL_SIZE", cfg.Pipeline.CandidatePoolSize)
	cfg.Pipeline.TopN = getEnvInt("PIPELINE_TOP_N", cfg.Pipeline.TopN)
	cfg.Pipeline.Workers = getEnvInt("PIPELINE_WORKERS", cfg.Pipeline.Workers)

	if cfg.Database.Password == "" {
		return nil, errors.New("missing database password")
	}

	return cfg, nil
}

// DefaultPipelineConfig returns the tuning values used when no overrides are set.
// Tests construct services from this directly, without touching the environment.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		LookbackDays:        90,
		RedemptionWindow:    7,
		CandidatePoolSize:   200,
		TopN:                10,
		NegativeSampleRatio: 4,
		MinPositives:        20,
		RetrainWeekday:      1, // Monday
		Seed:                42,
		Workers:             8,

		PSIWarnThreshold:  0.10,
		PSIAlertThreshold: 0.25,
		PSIBins:           10,
		DriftMinAlerts:    3,
	}
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
