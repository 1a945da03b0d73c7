package config

import (
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Settings is the process configuration. Values come from the environment
// (optionally seeded from .env) with the defaults below.
type Settings struct {
	Port      string
	GoEnv     string
	LogLevel  string
	ApiSecret string

	DBDriver             string
	DBHost               string
	DBPort               string
	DBUser               string
	DBPassword           string
	DBName               string
	DBSSLMode            string
	DBMaxOpenConns       int
	DBMaxIdleConns       int
	DBConnMaxLifetime    time.Duration
	DBConnMaxIdleTime    time.Duration
	SkipMigrations       bool
	GormLogFile          string
	RedisAddress         string
	RedisPassword        string
	CacheLifespan        time.Duration
	PubSubProjectID      string
	PubSubTopic          string
	PubSubCredentialJSON string

	CorsAllowedOrigins   []string
	RateLimitEnabled     bool
	RateLimitMaxRequests int64
	RateLimitWindow      time.Duration

	ScanCollectPolicy          string
	InvoicedParcelDeletePolicy string
	OverdueSweepInterval       time.Duration
	PaymentLockTTL             time.Duration
	OutboxPollInterval         time.Duration
	DefaultPhoneRegion         string
}

var (
	settings     *Settings
	settingsOnce sync.Once
)

func GetSettings() *Settings {
	settingsOnce.Do(func() {
		settings = LoadSettings()
	})
	return settings
}

// SetSettings replaces the process settings. Intended for tests and CLI overrides.
func SetSettings(s *Settings) {
	settingsOnce.Do(func() {})
	settings = s
}

func LoadSettings() *Settings {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("GO_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 50)
	v.SetDefault("DB_MAX_IDLE_CONNS", 25)
	v.SetDefault("DB_CONN_MAX_LIFETIME_SECONDS", 300)
	v.SetDefault("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)
	v.SetDefault("REDIS_ADDRESS", "localhost:6379")
	v.SetDefault("CACHE_LIFESPAN_MINUTES", 60)
	v.SetDefault("RATE_LIMIT_MAX_REQUESTS", 600)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("SCAN_COLLECT_POLICY", "skip_payment_check")
	v.SetDefault("INVOICED_PARCEL_DELETE_POLICY", "forbid")
	v.SetDefault("OVERDUE_SWEEP_INTERVAL", "1h")
	v.SetDefault("PAYMENT_LOCK_TTL", "15s")
	v.SetDefault("OUTBOX_POLL_INTERVAL", "500ms")
	v.SetDefault("DEFAULT_PHONE_REGION", "MM")

	projectID := v.GetString("PUBSUB_PROJECT_ID")
	if projectID == "" {
		projectID = v.GetString("GOOGLE_CLOUD_PROJECT")
	}

	return &Settings{
		Port:      v.GetString("PORT"),
		GoEnv:     v.GetString("GO_ENV"),
		LogLevel:  v.GetString("LOG_LEVEL"),
		ApiSecret: v.GetString("API_SECRET"),

		DBDriver:             strings.ToLower(v.GetString("DB_DRIVER")),
		DBHost:               v.GetString("DB_HOST"),
		DBPort:               v.GetString("DB_PORT"),
		DBUser:               v.GetString("DB_USER"),
		DBPassword:           v.GetString("DB_PASSWORD"),
		DBName:               v.GetString("DB_NAME"),
		DBSSLMode:            v.GetString("DB_SSLMODE"),
		DBMaxOpenConns:       v.GetInt("DB_MAX_OPEN_CONNS"),
		DBMaxIdleConns:       v.GetInt("DB_MAX_IDLE_CONNS"),
		DBConnMaxLifetime:    time.Duration(v.GetInt("DB_CONN_MAX_LIFETIME_SECONDS")) * time.Second,
		DBConnMaxIdleTime:    time.Duration(v.GetInt("DB_CONN_MAX_IDLE_TIME_SECONDS")) * time.Second,
		SkipMigrations:       v.GetBool("SKIP_MIGRATIONS"),
		GormLogFile:          v.GetString("GORM_LOG"),
		RedisAddress:         v.GetString("REDIS_ADDRESS"),
		RedisPassword:        v.GetString("REDIS_PASSWORD"),
		CacheLifespan:        time.Duration(v.GetInt("CACHE_LIFESPAN_MINUTES")) * time.Minute,
		PubSubProjectID:      projectID,
		PubSubTopic:          v.GetString("PUBSUB_TOPIC"),
		PubSubCredentialJSON: v.GetString("PUBSUB_CREDENTIALS_JSON"),

		CorsAllowedOrigins:   splitAndTrim(v.GetString("CORS_ALLOWED_ORIGINS")),
		RateLimitEnabled:     v.GetBool("RATE_LIMIT_ENABLED"),
		RateLimitMaxRequests: v.GetInt64("RATE_LIMIT_MAX_REQUESTS"),
		RateLimitWindow:      time.Duration(v.GetInt("RATE_LIMIT_WINDOW_SECONDS")) * time.Second,

		ScanCollectPolicy:          strings.ToLower(strings.TrimSpace(v.GetString("SCAN_COLLECT_POLICY"))),
		InvoicedParcelDeletePolicy: strings.ToLower(strings.TrimSpace(v.GetString("INVOICED_PARCEL_DELETE_POLICY"))),
		OverdueSweepInterval:       v.GetDuration("OVERDUE_SWEEP_INTERVAL"),
		PaymentLockTTL:             v.GetDuration("PAYMENT_LOCK_TTL"),
		OutboxPollInterval:         v.GetDuration("OUTBOX_POLL_INTERVAL"),
		DefaultPhoneRegion:         v.GetString("DEFAULT_PHONE_REGION"),
	}
}

func (s *Settings) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(s.GoEnv), "production")
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
