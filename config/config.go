package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds the service configuration.
// Secrets have no defaults and must come from the config file or the environment.
type AppConfig struct {
	App      AppSection      `koanf:"app"`
	Store    StoreSection    `koanf:"store"`
	Database DatabaseSection `koanf:"database"`
	Redis    RedisSection    `koanf:"redis"`
	Log      LogSection      `koanf:"log"`
	Ledger   LedgerSection   `koanf:"ledger"`
}

type AppSection struct {
	Port               string        `koanf:"port" validate:"required"`
	JWTSecret          string        `koanf:"jwt_secret"`
	TokenTTL           time.Duration `koanf:"token_ttl" validate:"gt=0"`
	RateLimitPerMinute int           `koanf:"rate_limit_per_minute" validate:"min=1"`
	AllowedOrigins     []string      `koanf:"allowed_origins"`
	GinMode            string        `koanf:"gin_mode" validate:"oneof=debug release test"`
}

type StoreSection struct {
	// Driver selects the record store backend.
	Driver         string `koanf:"driver" validate:"oneof=badger redis mysql postgres"`
	BadgerDir      string `koanf:"badger_dir"`
	BadgerInMemory bool   `koanf:"badger_in_memory"`
	MaxAttempts    int    `koanf:"max_attempts" validate:"min=1"`
}

type DatabaseSection struct {
	URI      string `koanf:"uri"`
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
}

type RedisSection struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	DB       int    `koanf:"db"`
	Password string `koanf:"password"`
}

type LogSection struct {
	Level      string `koanf:"level"`
	Path       string `koanf:"path"`
	GinPath    string `koanf:"gin_path"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

type LedgerSection struct {
	// VisitRadiusMeters is how far a user may be from a place for a visit with
	// coordinates to count.
	VisitRadiusMeters float64 `koanf:"visit_radius_m" validate:"gt=0"`
}

// ConfigPathEnvVar names the environment variable pointing at a YAML config file.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is not set.
var DefaultConfigPaths = []string{
	"config/config.yaml",
	"config.yaml",
	"/etc/hoppin/config.yaml",
}

var (
	cfg    AppConfig
	loaded bool
	mu     sync.Mutex
)

func defaults() AppConfig {
	return AppConfig{
		App: AppSection{
			Port:               "8080",
			TokenTTL:           24 * time.Hour,
			RateLimitPerMinute: 60,
			AllowedOrigins:     []string{"*"},
			GinMode:            "release",
		},
		Store: StoreSection{
			Driver:      "badger",
			BadgerDir:   "data/badger",
			MaxAttempts: 5,
		},
		Database: DatabaseSection{
			Host: "127.0.0.1",
			Port: "3306",
			User: "root",
			Name: "hoppin",
		},
		Redis: RedisSection{
			Host: "127.0.0.1",
			Port: 6379,
		},
		Log: LogSection{
			Level:      "info",
			GinPath:    "logs/go_gin.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Ledger: LedgerSection{
			VisitRadiusMeters: 150,
		},
	}
}

// Load reads the configuration and caches it for Get.
// Precedence: defaults -> YAML file -> .env -> environment variables.
func Load() (AppConfig, error) {
	mu.Lock()
	defer mu.Unlock()

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return AppConfig{}, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return AppConfig{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// A missing .env is fine; variables already set in the process win.
	_ = godotenv.Load()
	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return AppConfig{}, fmt.Errorf("load environment: %w", err)
	}
	if err := splitListField(k, "app.allowed_origins"); err != nil {
		return AppConfig{}, err
	}

	var out AppConfig
	if err := k.Unmarshal("", &out); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(out); err != nil {
		return AppConfig{}, fmt.Errorf("invalid config: %w", err)
	}

	cfg = out
	loaded = true
	return cfg, nil
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	mu.Lock()
	ok := loaded
	c := cfg
	mu.Unlock()
	if ok {
		return c
	}
	c, err := Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	return c
}

// Set replaces the cached configuration. Tests use it to avoid touching the
// environment.
func Set(c AppConfig) {
	mu.Lock()
	cfg = c
	loaded = true
	mu.Unlock()
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return defaults()
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envKeys maps environment variables onto config keys. Unknown variables are
// ignored.
var envKeys = map[string]string{
	"APP_PORT":              "app.port",
	"JWT_SECRET":            "app.jwt_secret",
	"TOKEN_TTL":             "app.token_ttl",
	"RATE_LIMIT_PER_MINUTE": "app.rate_limit_per_minute",
	"CORS_ALLOWED_ORIGINS":  "app.allowed_origins",
	"GIN_MODE":              "app.gin_mode",

	"STORE_DRIVER":       "store.driver",
	"BADGER_DIR":         "store.badger_dir",
	"BADGER_IN_MEMORY":   "store.badger_in_memory",
	"STORE_MAX_ATTEMPTS": "store.max_attempts",

	"DATABASE_URI": "database.uri",
	"DB_HOST":      "database.host",
	"DB_PORT":      "database.port",
	"DB_USER":      "database.user",
	"DB_PASSWORD":  "database.password",
	"DB_NAME":      "database.name",

	"REDIS_HOST":     "redis.host",
	"REDIS_PORT":     "redis.port",
	"REDIS_DB":       "redis.db",
	"REDIS_PASSWORD": "redis.password",

	"LOG_LEVEL":        "log.level",
	"LOG_PATH":         "log.path",
	"GIN_LOG_PATH":     "log.gin_path", // compatibility
	"GIN_PATH":         "log.gin_path",
	"LOG_MAX_SIZE_MB":  "log.max_size_mb",
	"LOG_MAX_BACKUPS":  "log.max_backups",
	"LOG_MAX_AGE_DAYS": "log.max_age_days",
	"LOG_COMPRESS":     "log.compress",

	"VISIT_RADIUS_M": "ledger.visit_radius_m",
}

func envTransform(key string) string {
	return envKeys[strings.ToUpper(key)]
}

// splitListField turns a comma separated string (from the environment) into a list.
func splitListField(k *koanf.Koanf, path string) error {
	raw, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	if err := k.Set(path, splitAndTrim(raw)); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
