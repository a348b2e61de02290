package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration required by the API and migrate processes.
// Values come from the environment, optionally seeded by soapbox.yaml.
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Twilio TwilioConfig
	Calls  CallsConfig
}

type AppConfig struct {
	Env  string
	Port int
	// Store selects the repositories: "postgres" or "memory".
	Store string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type TwilioConfig struct {
	// AuthToken verifies status callback signatures.
	AuthToken string
	// WebhookBaseURL is the public scheme://host Twilio posts callbacks to.
	WebhookBaseURL string
}

type CallsConfig struct {
	// MaxConcurrentPerCampaign caps live calls per campaign. 0 disables the cap.
	MaxConcurrentPerCampaign int
	// SlotTTL bounds a leaked slot after a crash.
	SlotTTL time.Duration
}

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("soapbox")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AutomaticEnv()

	v.SetDefault("APP_STORE", StorePostgres)
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("CALLS_MAX_CONCURRENT_PER_CAMPAIGN", 0)
	v.SetDefault("CALLS_SLOT_TTL", "2h")
	return v
}

// Load reads soapbox.yaml (if present) and the environment, then validates.
func Load() (Config, error) {
	v := newViper()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	c := Config{}
	var parseErrs []error
	intKey := func(key string) int {
		n, err := mustInt(v, key)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		return n
	}
	durKey := func(key string) time.Duration {
		d, err := optionalDuration(v, key)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		return d
	}

	c.App.Env = strings.TrimSpace(v.GetString("APP_ENV"))
	c.App.Port = intKey("APP_PORT")
	c.App.Store = strings.ToLower(strings.TrimSpace(v.GetString("APP_STORE")))

	c.DB.Host = strings.TrimSpace(v.GetString("DB_HOST"))
	c.DB.Port = intKey("DB_PORT")
	c.DB.User = strings.TrimSpace(v.GetString("DB_USER"))
	c.DB.Password = v.GetString("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(v.GetString("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(v.GetString("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(v.GetString("REDIS_HOST"))
	c.Redis.Port = intKey("REDIS_PORT")
	c.Redis.Password = v.GetString("REDIS_PASSWORD")
	if v.IsSet("REDIS_DB") {
		c.Redis.DB = intKey("REDIS_DB")
	}

	c.Auth.JWTSecret = v.GetString("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(v.GetString("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(v.GetString("JWT_AUDIENCE"))
	// Optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = durKey("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = durKey("JWT_REFRESH_TTL")

	c.Twilio.AuthToken = v.GetString("TWILIO_AUTH_TOKEN")
	c.Twilio.WebhookBaseURL = strings.TrimSpace(v.GetString("TWILIO_WEBHOOK_BASE_URL"))

	c.Calls.MaxConcurrentPerCampaign = intKey("CALLS_MAX_CONCURRENT_PER_CAMPAIGN")
	c.Calls.SlotTTL = durKey("CALLS_SLOT_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.Store == "" {
		c.App.Store = StorePostgres
	}
	switch c.App.Store {
	case StorePostgres:
		errs = append(errs, c.validateDB()...)
	case StoreMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("APP_STORE=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("APP_STORE must be postgres or memory, got %q", c.App.Store))
	}

	if c.Calls.MaxConcurrentPerCampaign < 0 {
		errs = append(errs, fmt.Errorf("CALLS_MAX_CONCURRENT_PER_CAMPAIGN must be >= 0, got %d", c.Calls.MaxConcurrentPerCampaign))
	}
	if c.Calls.SlotTTL <= 0 {
		c.Calls.SlotTTL = 2 * time.Hour
	}
	// Redis backs the call cap only.
	if c.Calls.MaxConcurrentPerCampaign > 0 {
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required when CALLS_MAX_CONCURRENT_PER_CAMPAIGN is set"))
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
		if c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(v *viper.Viper, key string) (int, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, s)
	}
	return n, nil
}

func optionalDuration(v *viper.Viper, key string) (time.Duration, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, s)
	}
	return d, nil
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
