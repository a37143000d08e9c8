package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"canteen-runner-api/models"

	"github.com/glebarez/sqlite"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//go:embed base.yaml
var baseConfig []byte

type Config struct {
	App       AppConfig       `mapstructure:"app" validate:"required"`
	HTTP      HTTPConfig      `mapstructure:"http" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Log       LogConfig       `mapstructure:"log" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Events    EventsConfig    `mapstructure:"events" validate:"required"`
	Jobs      JobsConfig      `mapstructure:"jobs" validate:"required"`
}

type AppConfig struct {
	Name    string `mapstructure:"name" validate:"required"`
	Version string `mapstructure:"version" validate:"required"`
	Env     string `mapstructure:"env"`
}

type HTTPConfig struct {
	Port            string        `mapstructure:"port" validate:"required,numeric"`
	GinMode         string        `mapstructure:"gin_mode" validate:"oneof=debug release test"`
	CORSOrigins     []string      `mapstructure:"cors_origins" validate:"required,min=1"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

type DatabaseConfig struct {
	Path          string `mapstructure:"path" validate:"required"`
	BusyTimeoutMS int    `mapstructure:"busy_timeout_ms" validate:"gte=0"`
}

type AuthConfig struct {
	JWTSecret            string        `mapstructure:"jwt_secret" validate:"required,min=16"`
	SessionTTL           time.Duration `mapstructure:"session_ttl" validate:"gt=0"`
	TokenTTL             time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
	RequireVerifiedEmail bool          `mapstructure:"require_verified_email"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	RPS     float64       `mapstructure:"rps" validate:"gte=0"`
	Burst   int           `mapstructure:"burst" validate:"gte=0"`
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
}

type EventsConfig struct {
	NATSURL          string `mapstructure:"nats_url" validate:"omitempty,url"`
	Subject          string `mapstructure:"subject" validate:"required"`
	SubscriberBuffer int    `mapstructure:"subscriber_buffer" validate:"gt=0"`
}

type JobsConfig struct {
	CleanupSchedule string `mapstructure:"cleanup_schedule" validate:"required"`
}

// legacyEnv keeps the plain variable names working next to the CANTEEN_ ones.
var legacyEnv = map[string]string{
	"http.port":       "PORT",
	"http.gin_mode":   "GIN_MODE",
	"auth.jwt_secret": "JWT_SECRET",
	"database.path":   "DATABASE_PATH",
}

// Load reads the embedded defaults, an optional .env file and the
// environment, in that order of precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(baseConfig)); err != nil {
		return nil, fmt.Errorf("read base config: %w", err)
	}

	replacer := strings.NewReplacer(".", "_", "-", "")
	v.SetEnvPrefix("CANTEEN")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := "CANTEEN_" + strings.ToUpper(replacer.Replace(key))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// InitDB opens the SQLite store and migrates every model. SQLite allows one
// writer at a time, so the pool is pinned to a single connection and lock
// waits go through busy_timeout.
func InitDB(cfg DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", cfg.Path, cfg.BusyTimeoutMS)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Warn),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	// Auto-migrate all models
	err = db.AutoMigrate(
		&models.Account{},
		&models.Profile{},
		&models.AuthToken{},
		&models.RevokedToken{},
		&models.Order{},
		&models.OrderStatusHistory{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}
