package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/KevinKickass/OpenMotionCore/internal/rt"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Bus       BusConfig       `mapstructure:"bus"`
	Slaves    []SlaveConfig   `mapstructure:"slaves"`
	Devices   DevicesConfig   `mapstructure:"devices"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// Auth Configuration
type AuthConfig struct {
	JWTSecretEnv   string         `mapstructure:"jwt_secret_env"`
	AccessTokenTTL time.Duration  `mapstructure:"access_token_ttl"`
	APIKeys        []APIKeyConfig `mapstructure:"api_keys"`
}

// APIKeyConfig is one accepted API key, stored as argon2id hash.
type APIKeyConfig struct {
	Name string `mapstructure:"name"`
	Hash string `mapstructure:"hash"`
	Role string `mapstructure:"role"`
}

type BusConfig struct {
	Transport            string     `mapstructure:"transport"`
	MasterIndex          uint       `mapstructure:"master_index"`
	AllowPartial         bool       `mapstructure:"allow_partial"`
	MaxConsecutiveFaults int        `mapstructure:"max_consecutive_faults"`
	Reference            string     `mapstructure:"reference"`
	Realtime             rt.Options `mapstructure:"realtime"`
}

// SlaveConfig binds one bus position to a template. Identity fields are
// optional and override the template identity.
type SlaveConfig struct {
	Name        string `mapstructure:"name"`
	Alias       uint16 `mapstructure:"alias"`
	Position    uint16 `mapstructure:"position"`
	VendorID    uint32 `mapstructure:"vendor_id"`
	ProductCode uint32 `mapstructure:"product_code"`
	Template    string `mapstructure:"template"`
}

type DevicesConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
}

type TelemetryConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

func Load(path string) (*Config, error) {
	// .env ist optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults setzen
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_connections", 4)

	// Auth Defaults
	v.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	v.SetDefault("auth.access_token_ttl", "60m")

	v.SetDefault("bus.transport", "sim")
	v.SetDefault("bus.master_index", 0)
	v.SetDefault("bus.allow_partial", false)
	v.SetDefault("bus.max_consecutive_faults", 10)
	v.SetDefault("bus.realtime.disabled", false)
	v.SetDefault("bus.realtime.priority", 0)
	v.SetDefault("bus.realtime.lock_memory", true)
	v.SetDefault("bus.realtime.cpu", -1)

	v.SetDefault("devices.search_paths", []string{"device-templates"})
	v.SetDefault("telemetry.interval", "100ms")

	// Environment Variables mit Prefix OMC_, z.B. OMC_BUS_ALLOW_PARTIAL
	v.SetEnvPrefix("OMC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the values the loader can't express as defaults.
func (c *Config) Validate() error {
	if len(c.Slaves) == 0 {
		return fmt.Errorf("invalid config: no slaves configured")
	}
	if c.Bus.Transport != "sim" {
		return fmt.Errorf("invalid config: unknown bus transport %q", c.Bus.Transport)
	}
	if c.Telemetry.Interval <= 0 {
		return fmt.Errorf("invalid config: telemetry.interval must be positive")
	}
	for _, k := range c.Auth.APIKeys {
		if k.Role != "operator" && k.Role != "admin" {
			return fmt.Errorf("invalid config: api key %q has unknown role %q", k.Name, k.Role)
		}
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

const devJWTSecret = "dev-secret-change-in-production-min-32-chars"

// JWT Secret aus Environment Variable laden
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET" // Fallback
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		// Development Fallback (MIT WARNING!)
		return devJWTSecret
	}
	return secret
}

// Helper um zu prüfen ob Production-Ready
func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != devJWTSecret && len(secret) >= 32
}
