package config

import (
	"errors"
	"io/fs"
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

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Generator GeneratorConfig
	Jobs      JobsConfig
	Exports   ExportsConfig
}

type DatabaseConfig struct {
	Enabled      bool
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	CacheTTL time.Duration
}

// JWTConfig controls bearer token checks on generation and export routes.
type JWTConfig struct {
	Enabled bool
	Secret  string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// GeneratorConfig holds the genetic search budget and its wall-clock limit.
type GeneratorConfig struct {
	PopulationSize int
	Generations    int
	MutationRate   float64
	CrossoverRate  float64
	EliteSize      int
	TournamentSize int
	Patience       int
	MinGenerations int
	Workers        int
	Timeout        time.Duration
	LogEvery       int
}

// JobsConfig sizes the asynchronous generation queue.
type JobsConfig struct {
	Workers int
	Buffer  int
	Retries int
	RunTTL  time.Duration
}

// ExportsConfig configures rendered timetable files and their download links.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupSchedule string
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Enabled:      v.GetBool("DB_ENABLED"),
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
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		CacheTTL: parseDuration(v.GetString("CACHE_TTL"), time.Hour),
	}

	cfg.JWT = JWTConfig{
		Enabled: v.GetBool("AUTH_ENABLED"),
		Secret:  v.GetString("JWT_SECRET"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Generator = GeneratorConfig{
		PopulationSize: v.GetInt("GA_POPULATION_SIZE"),
		Generations:    v.GetInt("GA_GENERATIONS"),
		MutationRate:   v.GetFloat64("GA_MUTATION_RATE"),
		CrossoverRate:  v.GetFloat64("GA_CROSSOVER_RATE"),
		EliteSize:      v.GetInt("GA_ELITE_SIZE"),
		TournamentSize: v.GetInt("GA_TOURNAMENT_SIZE"),
		Patience:       v.GetInt("GA_PATIENCE"),
		MinGenerations: v.GetInt("GA_MIN_GENERATIONS"),
		Workers:        v.GetInt("GA_WORKERS"),
		Timeout:        parseDuration(v.GetString("GA_TIMEOUT"), 30*time.Second),
		LogEvery:       v.GetInt("GA_LOG_EVERY"),
	}

	cfg.Jobs = JobsConfig{
		Workers: v.GetInt("JOBS_WORKERS"),
		Buffer:  v.GetInt("JOBS_BUFFER"),
		Retries: v.GetInt("JOBS_RETRIES"),
		RunTTL:  parseDuration(v.GetString("RUN_TTL"), 24*time.Hour),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupSchedule: v.GetString("EXPORTS_CLEANUP_SCHEDULE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_ENABLED", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "timetable")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL", "1h")

	v.SetDefault("AUTH_ENABLED", false)
	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("GA_POPULATION_SIZE", 100)
	v.SetDefault("GA_GENERATIONS", 300)
	v.SetDefault("GA_MUTATION_RATE", 0.15)
	v.SetDefault("GA_CROSSOVER_RATE", 0.85)
	v.SetDefault("GA_ELITE_SIZE", 8)
	v.SetDefault("GA_TOURNAMENT_SIZE", 5)
	v.SetDefault("GA_PATIENCE", 20)
	v.SetDefault("GA_MIN_GENERATIONS", 20)
	v.SetDefault("GA_WORKERS", 0)
	v.SetDefault("GA_TIMEOUT", "30s")
	v.SetDefault("GA_LOG_EVERY", 50)

	v.SetDefault("JOBS_WORKERS", 2)
	v.SetDefault("JOBS_BUFFER", 32)
	v.SetDefault("JOBS_RETRIES", 0)
	v.SetDefault("RUN_TTL", "24h")

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORTS_CLEANUP_SCHEDULE", "@hourly")
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
