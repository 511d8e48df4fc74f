package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// Values come from env; a local .env file is read first when present and never
// overrides variables that are already set.
type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Voximplant VoximplantConfig
	OpenAI     OpenAIConfig
	Voice      VoiceCredentials
	Pipeline   PipelineConfig
}

type AppConfig struct {
	Env  string
	Port int
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

// RedisConfig is optional. An empty Host means pipeline locks stay in-process.
type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	AdminUsername string
	AdminPassword string
}

type VoximplantConfig struct {
	AccountID     string
	APIKey        string
	ApplicationID string
	RuleID        string
	ScenarioID    string
	CallerID      string
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64

	// WebhookURL is the transcript endpoint the call scenario posts to, passed through verbatim.
	WebhookURL string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// VoiceCredentials are handed to the call scenario; the backend never calls these providers itself.
type VoiceCredentials struct {
	ElevenLabsAPIKey  string
	ElevenLabsAgentID string
	YandexAPIKey      string
	YandexFolderID    string
}

type PipelineConfig struct {
	Workers   int
	QueueSize int
	StepDelay time.Duration

	// StaleAfter of zero disables the stale call sweeper.
	StaleAfter    time.Duration
	SweepSchedule string
}

const (
	defaultVoximplantBaseURL = "https://api.voximplant.com/platform_api"
	defaultOpenAIModel       = "gpt-4o-mini"
	defaultSweepSchedule     = "*/5 * * * *"
)

func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf(".env: %w", err)
	}

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, parseErrs = requiredInt(parseErrs, "APP_PORT")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = requiredInt(parseErrs, "DB_PORT")
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = optionalInt(parseErrs, "REDIS_PORT", 6379)

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_ACCESS_TTL", 0)
	c.Auth.RefreshTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_REFRESH_TTL", 0)
	c.Auth.AdminUsername = strings.TrimSpace(os.Getenv("ADMIN_USERNAME"))
	c.Auth.AdminPassword = os.Getenv("ADMIN_PASSWORD")

	c.Voximplant.AccountID = strings.TrimSpace(os.Getenv("VOXIMPLANT_ACCOUNT_ID"))
	c.Voximplant.APIKey = os.Getenv("VOXIMPLANT_API_KEY")
	c.Voximplant.ApplicationID = strings.TrimSpace(os.Getenv("VOXIMPLANT_APPLICATION_ID"))
	c.Voximplant.RuleID = strings.TrimSpace(os.Getenv("VOXIMPLANT_RULE_ID"))
	c.Voximplant.ScenarioID = strings.TrimSpace(os.Getenv("VOXIMPLANT_SCENARIO_ID"))
	c.Voximplant.CallerID = strings.TrimSpace(os.Getenv("VOXIMPLANT_CALLER_ID"))
	c.Voximplant.BaseURL = strings.TrimSpace(os.Getenv("VOXIMPLANT_BASE_URL"))
	c.Voximplant.Timeout, parseErrs = optionalDuration(parseErrs, "VOXIMPLANT_TIMEOUT", 30*time.Second)
	c.Voximplant.RatePerSecond, parseErrs = optionalFloat(parseErrs, "VOXIMPLANT_RATE_PER_SEC", 5)
	c.Voximplant.WebhookURL = strings.TrimRight(strings.TrimSpace(os.Getenv("WEBHOOK_URL")), "/")

	c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAI.Model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	c.OpenAI.BaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	c.OpenAI.Timeout, parseErrs = optionalDuration(parseErrs, "OPENAI_TIMEOUT", 60*time.Second)

	c.Voice.ElevenLabsAPIKey = os.Getenv("ELEVENLABS_API_KEY")
	c.Voice.ElevenLabsAgentID = strings.TrimSpace(os.Getenv("ELEVENLABS_AGENT_ID"))
	c.Voice.YandexAPIKey = os.Getenv("YANDEX_API_KEY")
	c.Voice.YandexFolderID = strings.TrimSpace(os.Getenv("YANDEX_FOLDER_ID"))

	c.Pipeline.Workers, parseErrs = optionalInt(parseErrs, "PIPELINE_WORKERS", 8)
	c.Pipeline.QueueSize, parseErrs = optionalInt(parseErrs, "PIPELINE_QUEUE_SIZE", 256)
	c.Pipeline.StepDelay, parseErrs = optionalDuration(parseErrs, "PIPELINE_STEP_DELAY", time.Second)
	c.Pipeline.StaleAfter, parseErrs = optionalDuration(parseErrs, "STALE_CALL_AFTER", 30*time.Minute)
	c.Pipeline.SweepSchedule = strings.TrimSpace(os.Getenv("STALE_SWEEP_SCHEDULE"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if !isValidPort(c.App.Port) {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if !isValidPort(c.DB.Port) {
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

	if c.Redis.Host != "" && !isValidPort(c.Redis.Port) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
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
	if c.Auth.AdminUsername == "" {
		errs = append(errs, errors.New("ADMIN_USERNAME is required"))
	}
	if c.Auth.AdminPassword == "" {
		errs = append(errs, errors.New("ADMIN_PASSWORD is required"))
	}

	if c.IsProduction() && !c.Voximplant.Enabled() {
		errs = append(errs, errors.New("VOXIMPLANT_ACCOUNT_ID, VOXIMPLANT_API_KEY and VOXIMPLANT_RULE_ID are required in production"))
	}
	if c.Voximplant.BaseURL == "" {
		c.Voximplant.BaseURL = defaultVoximplantBaseURL
	}
	if c.Voximplant.Timeout <= 0 {
		errs = append(errs, errors.New("VOXIMPLANT_TIMEOUT must be positive"))
	}
	if c.Voximplant.RatePerSecond <= 0 {
		errs = append(errs, errors.New("VOXIMPLANT_RATE_PER_SEC must be positive"))
	}

	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = defaultOpenAIModel
	}
	if c.OpenAI.Timeout <= 0 {
		errs = append(errs, errors.New("OPENAI_TIMEOUT must be positive"))
	}

	if c.Pipeline.Workers <= 0 {
		errs = append(errs, fmt.Errorf("PIPELINE_WORKERS must be positive, got %d", c.Pipeline.Workers))
	}
	if c.Pipeline.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("PIPELINE_QUEUE_SIZE must be positive, got %d", c.Pipeline.QueueSize))
	}
	if c.Pipeline.StepDelay < 0 {
		errs = append(errs, errors.New("PIPELINE_STEP_DELAY must not be negative"))
	}
	if c.Pipeline.StaleAfter < 0 {
		errs = append(errs, errors.New("STALE_CALL_AFTER must not be negative"))
	}
	if c.Pipeline.SweepSchedule == "" {
		c.Pipeline.SweepSchedule = defaultSweepSchedule
	}

	return joinErrors(errs)
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

func (c Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Enabled reports whether outbound calls can be placed through Voximplant.
func (v VoximplantConfig) Enabled() bool {
	return v.AccountID != "" && v.APIKey != "" && v.RuleID != ""
}

func requiredInt(errs []error, key string) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, append(errs, fmt.Errorf("%s is required", key))
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalInt(errs []error, key string, def int) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalFloat(errs []error, key string, def float64) (float64, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a number, got %q", key, v))
	}
	return f, errs
}

func optionalDuration(errs []error, key string, def time.Duration) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func isValidPort(p int) bool {
	return p > 0 && p <= 65535
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
