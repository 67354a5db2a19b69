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

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	SQLitePath  string
	LogLevel    string
	LogFormat   string
	Env         string

	AuthMode           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	JWTClockSkewSecs   int
	AdminAPIKey        string
	DevTokenTTLMinutes int
	OIDCIssuerURL      string
	OIDCJWKSURL        string
	OIDCAudience       string

	IssuerKind           string
	IssuerID             string
	IssuerPrivateKeyPEM  string
	IssuerPrivateKeyPath string
	SubjectsFile         string
	CircuitKeyDir        string
	IncomeThreshold      int
	IncomeCurrency       string
	CreditScoreThreshold int
	MinOnTimePayments    int

	EmployerID            string
	BankID                string
	VerifierID            string
	EmployerURL           string
	BankURL               string
	RevocationRegistryURL string
	UpstreamTimeoutMillis int
	UpstreamRetries       int
	KeyCacheTTLSeconds    int

	PolicyPath string

	AMQPURL        string
	AMQPExchange   string
	AMQPQueue      string
	AMQPRoutingKey string

	MetricsEnabled bool

	RateLimitRequests       int
	RateLimitWindowSeconds  int
	RateLimitIncludeSubject bool
	RateLimitFailClosed     bool
	RateLimitMaxKeys        int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load reads .env (or the given files) before FromEnv. Missing files are
// skipped; a file that exists but cannot be parsed is an error. The returned
// Config is always populated from the environment. Variables already set in
// the process environment win.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var errs []error
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("load %s: %w", f, err))
		}
	}
	return FromEnv(), errors.Join(errs...)
}

func FromEnv() Config {
	return Config{
		HTTPAddr:                envDefault("HTTP_ADDR", ":8080"),
		PostgresDSN:             os.Getenv("POSTGRES_DSN"),
		SQLitePath:              os.Getenv("SQLITE_PATH"),
		LogLevel:                envDefault("LOG_LEVEL", "info"),
		LogFormat:               envDefault("LOG_FORMAT", "json"),
		Env:                     envDefault("ZKRENT_ENV", "development"),
		AuthMode:                envDefault("AUTH_MODE", "jwt"),
		JWTSecret:               os.Getenv("JWT_SECRET"),
		JWTIssuer:               os.Getenv("JWT_ISSUER"),
		JWTAudience:             os.Getenv("JWT_AUDIENCE"),
		JWTClockSkewSecs:        envIntDefault("JWT_CLOCK_SKEW_SECONDS", 60),
		AdminAPIKey:             os.Getenv("ADMIN_API_KEY"),
		DevTokenTTLMinutes:      envIntDefault("DEV_TOKEN_TTL_MINUTES", 60),
		OIDCIssuerURL:           os.Getenv("OIDC_ISSUER_URL"),
		OIDCJWKSURL:             os.Getenv("OIDC_JWKS_URL"),
		OIDCAudience:            os.Getenv("OIDC_AUDIENCE"),
		IssuerKind:              strings.ToLower(envDefault("ISSUER_KIND", "employer")),
		IssuerID:                os.Getenv("ISSUER_ID"),
		IssuerPrivateKeyPEM:     os.Getenv("ISSUER_PRIVATE_KEY_PEM"),
		IssuerPrivateKeyPath:    os.Getenv("ISSUER_PRIVATE_KEY_PATH"),
		SubjectsFile:            os.Getenv("SUBJECTS_FILE"),
		CircuitKeyDir:           envDefault("CIRCUIT_KEY_DIR", "./data/circuits"),
		IncomeThreshold:         envIntDefault("INCOME_THRESHOLD", 3000),
		IncomeCurrency:          envDefault("INCOME_CURRENCY", "EUR"),
		CreditScoreThreshold:    envIntDefault("CREDIT_SCORE_THRESHOLD", 700),
		MinOnTimePayments:       envIntDefault("MIN_ON_TIME_PAYMENTS", 10),
		EmployerID:              envDefault("EMPLOYER_ID", "employer"),
		BankID:                  envDefault("BANK_ID", "bank"),
		VerifierID:              envDefault("VERIFIER_ID", "verifier"),
		EmployerURL:             envDefault("EMPLOYER_URL", "http://localhost:3001"),
		BankURL:                 envDefault("BANK_URL", "http://localhost:3002"),
		RevocationRegistryURL:   os.Getenv("REVOCATION_REGISTRY_URL"),
		UpstreamTimeoutMillis:   envIntDefault("UPSTREAM_TIMEOUT_MS", 3000),
		UpstreamRetries:         envIntDefault("UPSTREAM_RETRIES", 3),
		KeyCacheTTLSeconds:      envIntDefault("KEY_CACHE_TTL_SECONDS", 0),
		PolicyPath:              os.Getenv("POLICY_PATH"),
		AMQPURL:                 os.Getenv("AMQP_URL"),
		AMQPExchange:            envDefault("AMQP_EXCHANGE", "zkrent.events"),
		AMQPQueue:               envDefault("AMQP_QUEUE", "zkrent.decisions"),
		AMQPRoutingKey:          envDefault("AMQP_ROUTING_KEY", "application.decided"),
		MetricsEnabled:          envBoolDefault("METRICS_ENABLED", true),
		RateLimitRequests:       envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds:  envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitIncludeSubject: envBoolDefault("RATE_LIMIT_INCLUDE_SUBJECT", false),
		RateLimitFailClosed:     envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:        envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 envIntDefault("REDIS_DB", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func (c Config) UpstreamTimeout() time.Duration {
	if c.UpstreamTimeoutMillis <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.UpstreamTimeoutMillis) * time.Millisecond
}

func (c Config) KeyCacheTTL() time.Duration {
	if c.KeyCacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.KeyCacheTTLSeconds) * time.Second
}

func (c Config) RateLimitWindow() time.Duration {
	if c.RateLimitWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func (c Config) ClockSkew() time.Duration {
	return time.Duration(c.JWTClockSkewSecs) * time.Second
}

func (c Config) DevTokenTTL() time.Duration {
	return time.Duration(c.DevTokenTTLMinutes) * time.Minute
}

// Production is true outside development and test environments.
func (c Config) Production() bool {
	switch strings.ToLower(c.Env) {
	case "development", "dev", "test", "local":
		return false
	}
	return true
}
