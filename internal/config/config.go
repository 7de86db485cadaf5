package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DeviceModeStrict  = "strict"
	DeviceModeLenient = "lenient"

	OnCheckErrorAllow = "allow"
	OnCheckErrorDeny  = "deny"

	StorageDriverPostgres = "postgres"
	StorageDriverBBolt    = "bbolt"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Log       LogConfig
	JWT       JWTConfig
	Admin     AdminConfig
	Gate      GateConfig
	Provider  ProviderConfig
	Scheduler SchedulerConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout    time.Duration `mapstructure:"idleTimeout"`
	ShutdownPeriod time.Duration `mapstructure:"shutdownPeriod"`
	TrustedProxies []string      `mapstructure:"trustedProxies"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
	AutoMigrate     bool          `mapstructure:"autoMigrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig selects the License/Quota backend. bbolt is meant for
// single-node deployments; everything else goes through postgres.
type StorageConfig struct {
	Driver   string `mapstructure:"driver"`
	BoltPath string `mapstructure:"boltPath"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
	Issuer string        `mapstructure:"issuer"`
}

type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"passwordHash"`
}

type GateConfig struct {
	DeviceMode         string           `mapstructure:"deviceMode"`
	OnCheckError       string           `mapstructure:"onCheckError"`
	ResetHour          int              `mapstructure:"resetHour"`
	Timezone           string           `mapstructure:"timezone"`
	DefaultDailyLimit  int64            `mapstructure:"defaultDailyLimit"`
	TierLimits         map[string]int64 `mapstructure:"tierLimits"`
	ActivationValidity time.Duration    `mapstructure:"activationValidity"`
	StoreTimeout       time.Duration    `mapstructure:"storeTimeout"`
}

type ProviderConfig struct {
	BaseURL       string        `mapstructure:"baseURL"`
	APIKey        string        `mapstructure:"apiKey"`
	Model         string        `mapstructure:"model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxTokens     int           `mapstructure:"maxTokens"`
	Temperature   float64       `mapstructure:"temperature"`
	CommentPrompt string        `mapstructure:"commentPrompt"`
	SummaryPrompt string        `mapstructure:"summaryPrompt"`
}

type SchedulerConfig struct {
	ResetSpec    string `mapstructure:"resetSpec"`
	ExpireSpec   string `mapstructure:"expireSpec"`
	SharedSecret string `mapstructure:"sharedSecret"`
	Concurrency  int    `mapstructure:"concurrency"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requestsPerSecond"`
	Burst             int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allowOrigins"`
}

func LoadConfig(configPath string) (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables and config file")
	}

	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			log.Printf("Warning: could not read config file: %s. Error: %v\n", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 60*time.Second)
	v.SetDefault("server.idleTimeout", 120*time.Second)
	v.SetDefault("server.shutdownPeriod", 15*time.Second)

	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 25)
	v.SetDefault("database.connMaxLifetime", 5*time.Minute)
	v.SetDefault("database.autoMigrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.driver", StorageDriverPostgres)
	v.SetDefault("storage.boltPath", "./data/commentgate.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("jwt.ttl", 12*time.Hour)
	v.SetDefault("jwt.issuer", "commentgate-api")

	v.SetDefault("admin.username", "admin")

	v.SetDefault("gate.deviceMode", DeviceModeLenient)
	v.SetDefault("gate.onCheckError", OnCheckErrorAllow)
	v.SetDefault("gate.resetHour", 8)
	v.SetDefault("gate.timezone", "Local")
	v.SetDefault("gate.defaultDailyLimit", 25)
	v.SetDefault("gate.activationValidity", 30*24*time.Hour)
	v.SetDefault("gate.storeTimeout", 3*time.Second)

	v.SetDefault("provider.baseURL", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("provider.model", "gpt-4o-mini")
	v.SetDefault("provider.timeout", 30*time.Second)
	v.SetDefault("provider.maxTokens", 400)
	v.SetDefault("provider.temperature", 0.7)
	v.SetDefault("provider.commentPrompt", "You write short, genuine, professional comments on LinkedIn posts. Reply with the comment text only.")
	v.SetDefault("provider.summaryPrompt", "You summarize LinkedIn posts in two or three plain sentences. Reply with the summary only.")

	v.SetDefault("scheduler.resetSpec", "@every 1h")
	v.SetDefault("scheduler.expireSpec", "@every 1h")
	v.SetDefault("scheduler.concurrency", 5)

	v.SetDefault("rateLimit.requestsPerSecond", 2)
	v.SetDefault("rateLimit.burst", 5)

	v.SetDefault("cors.allowOrigins", []string{"https://www.linkedin.com"})
}

// Validate rejects enumerations the gate cannot interpret.
func (c *Config) Validate() error {
	switch c.Gate.DeviceMode {
	case DeviceModeStrict, DeviceModeLenient:
	default:
		return fmt.Errorf("invalid gate.deviceMode %q: must be %q or %q", c.Gate.DeviceMode, DeviceModeStrict, DeviceModeLenient)
	}

	switch c.Gate.OnCheckError {
	case OnCheckErrorAllow, OnCheckErrorDeny:
	default:
		return fmt.Errorf("invalid gate.onCheckError %q: must be %q or %q", c.Gate.OnCheckError, OnCheckErrorAllow, OnCheckErrorDeny)
	}

	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverBBolt:
	default:
		return fmt.Errorf("invalid storage.driver %q", c.Storage.Driver)
	}

	if c.Gate.ResetHour < 0 || c.Gate.ResetHour > 23 {
		return fmt.Errorf("invalid gate.resetHour %d: must be within 0..23", c.Gate.ResetHour)
	}
	if c.Gate.DefaultDailyLimit <= 0 {
		return fmt.Errorf("gate.defaultDailyLimit must be > 0")
	}
	for tier, limit := range c.Gate.TierLimits {
		if limit <= 0 {
			return fmt.Errorf("gate.tierLimits.%s must be > 0", tier)
		}
	}
	if _, err := time.LoadLocation(c.Gate.Timezone); err != nil {
		return fmt.Errorf("invalid gate.timezone %q: %w", c.Gate.Timezone, err)
	}
	if len(c.CORS.AllowOrigins) == 0 {
		return fmt.Errorf("cors.allowOrigins must list at least one origin")
	}

	return nil
}

// Location resolves the configured cycle timezone. Validate guarantees it loads.
func (g GateConfig) Location() *time.Location {
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// LimitForTier returns the daily ceiling for a license tier, falling back to the default.
func (g GateConfig) LimitForTier(tier string) int64 {
	if limit, ok := g.TierLimits[strings.ToLower(tier)]; ok && limit > 0 {
		return limit
	}
	return g.DefaultDailyLimit
}
