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

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	GPA           GPAConfig
	PendingDegree PendingDegreeConfig
	Mail          MailConfig
	Verification  VerificationConfig
	Seed          SeedConfig
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
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	Issuer            string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// GPAConfig governs caching of computed GPA payloads.
type GPAConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// PendingDegreeConfig controls the signed tokens handed out for deferred degree choices.
type PendingDegreeConfig struct {
	Secret string
	TTL    time.Duration
}

// MailConfig selects the outbound mail driver and its worker pool.
type MailConfig struct {
	Driver         string
	FromName       string
	FromAddress    string
	SendgridAPIKey string
	Workers        int
	Retries        int
}

// VerificationConfig configures email verification codes.
type VerificationConfig struct {
	CodeTTL time.Duration
}

// SeedConfig is read by cmd/seed only.
type SeedConfig struct {
	DegreesFile        string
	SuperAdminEmail    string
	SuperAdminUsername string
	SuperAdminPassword string
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

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		Issuer:            v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.GPA = GPAConfig{
		CacheEnabled: v.GetBool("ENABLE_GPA_CACHE"),
		CacheTTL:     parseDuration(v.GetString("GPA_CACHE_TTL"), 10*time.Minute),
	}

	pendingSecret := v.GetString("PENDING_DEGREE_SECRET")
	if pendingSecret == "" {
		pendingSecret = cfg.JWT.Secret
	}
	cfg.PendingDegree = PendingDegreeConfig{
		Secret: pendingSecret,
		TTL:    parseDuration(v.GetString("PENDING_DEGREE_TTL"), 24*time.Hour),
	}

	cfg.Mail = MailConfig{
		Driver:         strings.ToLower(v.GetString("MAIL_DRIVER")),
		FromName:       v.GetString("MAIL_FROM_NAME"),
		FromAddress:    v.GetString("MAIL_FROM_ADDRESS"),
		SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
		Workers:        v.GetInt("MAIL_WORKERS"),
		Retries:        v.GetInt("MAIL_RETRIES"),
	}

	cfg.Verification = VerificationConfig{
		CodeTTL: parseDuration(v.GetString("VERIFICATION_CODE_TTL"), 10*time.Minute),
	}

	cfg.Seed = SeedConfig{
		DegreesFile:        v.GetString("SEED_DEGREES_FILE"),
		SuperAdminEmail:    v.GetString("SUPERADMIN_EMAIL"),
		SuperAdminUsername: v.GetString("SUPERADMIN_USERNAME"),
		SuperAdminPassword: v.GetString("SUPERADMIN_PASSWORD"),
	}

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
	v.SetDefault("DB_NAME", "gpa_tracker")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "gpa-tracker-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_GPA_CACHE", false)
	v.SetDefault("GPA_CACHE_TTL", "10m")

	v.SetDefault("PENDING_DEGREE_SECRET", "")
	v.SetDefault("PENDING_DEGREE_TTL", "24h")

	v.SetDefault("MAIL_DRIVER", "log")
	v.SetDefault("MAIL_FROM_NAME", "UniGPA")
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@gpa.local")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_WORKERS", 2)
	v.SetDefault("MAIL_RETRIES", 3)

	v.SetDefault("VERIFICATION_CODE_TTL", "10m")

	v.SetDefault("SEED_DEGREES_FILE", "./seeds/degrees.yaml")
	v.SetDefault("SUPERADMIN_EMAIL", "superadmin@gpa.local")
	v.SetDefault("SUPERADMIN_USERNAME", "superadmin")
	v.SetDefault("SUPERADMIN_PASSWORD", "admin1234")
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
