package internal

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Mpesa         MpesaConfig         `mapstructure:"mpesa"`
	Reconciler    ReconcilerConfig    `mapstructure:"reconciler"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTPublicKey string `mapstructure:"jwt_public_key" validate:"required"`
}

// MpesaConfig carries the Daraja API credentials. Every field except
// RequestTimeout is required for the gateway client to construct; absence
// fails at startup rather than at first call.
type MpesaConfig struct {
	Environment        string        `mapstructure:"environment" validate:"required,oneof=sandbox production"`
	ConsumerKey        string        `mapstructure:"consumer_key" validate:"required"`
	ConsumerSecret     string        `mapstructure:"consumer_secret" validate:"required"`
	ShortCode          string        `mapstructure:"short_code" validate:"required"`
	Passkey            string        `mapstructure:"passkey" validate:"required"`
	CallbackURL        string        `mapstructure:"callback_url" validate:"required,url"`
	CallbackSecret     string        `mapstructure:"callback_secret"`
	InitiatorName      string        `mapstructure:"initiator_name"`
	SecurityCredential string        `mapstructure:"security_credential"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
}

// ReconcilerConfig controls the sweep over pending transactions that never
// received a callback.
type ReconcilerConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	PendingAge  time.Duration `mapstructure:"pending_age"`
	ExpireAfter time.Duration `mapstructure:"expire_after"`
	Workers     int           `mapstructure:"workers"`
	BatchSize   int           `mapstructure:"batch_size"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ----------------- ENV LOADING -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds the config entirely from environment variables,
// used for containerized deployments where no config.yml is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_SERVER_PORT", 8080),
			BaseURL:           getEnv("HTTP_SERVER_BASE_URL", ""),
			AllowedOrigins:    getEnv("HTTP_SERVER_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_SERVER_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_SERVER_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DATABASE_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_SOURCE", ""),
		},
		Security: SecurityConfig{
			JWTPublicKey: getEnv("SECURITY_JWT_PUBLIC_KEY", ""),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("OBSERVABILITY_LOGGING_LEVEL", "info"),
				Format: getEnv("OBSERVABILITY_LOGGING_FORMAT", "json"),
			},
		},
		Mpesa: MpesaConfig{
			Environment:        getEnv("MPESA_ENVIRONMENT", "sandbox"),
			ConsumerKey:        getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret:     getEnv("MPESA_CONSUMER_SECRET", ""),
			ShortCode:          getEnv("MPESA_SHORT_CODE", ""),
			Passkey:            getEnv("MPESA_PASSKEY", ""),
			CallbackURL:        getEnv("MPESA_CALLBACK_URL", ""),
			CallbackSecret:     getEnv("MPESA_CALLBACK_SECRET", ""),
			InitiatorName:      getEnv("MPESA_INITIATOR_NAME", "Kodisha"),
			SecurityCredential: getEnv("MPESA_SECURITY_CREDENTIAL", ""),
			RequestTimeout:     getEnvAsDuration("MPESA_REQUEST_TIMEOUT", 30*time.Second),
		},
		Reconciler: ReconcilerConfig{
			Interval:    getEnvAsDuration("RECONCILER_INTERVAL", 5*time.Minute),
			PendingAge:  getEnvAsDuration("RECONCILER_PENDING_AGE", 3*time.Minute),
			ExpireAfter: getEnvAsDuration("RECONCILER_EXPIRE_AFTER", 24*time.Hour),
			Workers:     getEnvAsInt("RECONCILER_WORKERS", 4),
			BatchSize:   getEnvAsInt("RECONCILER_BATCH_SIZE", 100),
		},
	}
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Mpesa.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("mpesa config: %v", err))
	}

	if err := c.Reconciler.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("reconciler config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if _, err := c.GetPublicKey(); err != nil {
		return fmt.Errorf("invalid JWT public key: %w", err)
	}
	return nil
}

func (c *SecurityConfig) GetPublicKey() (*rsa.PublicKey, error) {
	keyData, err := base64.StdEncoding.DecodeString(c.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("failed to parse PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return rsaPub, nil
}

func (c *MpesaConfig) Validate() error {
	if c.Environment != "sandbox" && c.Environment != "production" {
		return fmt.Errorf("environment must be sandbox or production, got %q", c.Environment)
	}
	if c.ConsumerKey == "" {
		return errors.New("consumer_key is required")
	}
	if c.ConsumerSecret == "" {
		return errors.New("consumer_secret is required")
	}
	if c.ShortCode == "" {
		return errors.New("short_code is required")
	}
	if c.Passkey == "" {
		return errors.New("passkey is required")
	}
	if c.CallbackURL == "" {
		return errors.New("callback_url is required")
	}
	if _, err := url.Parse(c.CallbackURL); err != nil {
		return fmt.Errorf("invalid callback_url: %w", err)
	}
	return nil
}

func (c *ReconcilerConfig) Validate() error {
	if c.Workers < 0 {
		return errors.New("workers cannot be negative")
	}
	if c.ExpireAfter != 0 && c.ExpireAfter < c.PendingAge {
		return errors.New("expire_after must be >= pending_age")
	}
	return nil
}
