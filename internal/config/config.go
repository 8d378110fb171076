package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database   DatabaseConfig
	Tenant     TenantConfig
	Discovery  DiscoveryConfig
	Plans      PlanConfig
	Secrets    SecretsConfig
	JWT        JWTConfig
	Redis      RedisConfig
	Server     ServerConfig
	Alerts     AlertConfig
	SelfHosted bool
}

// DatabaseConfig holds the control-plane PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// TenantConfig describes the cluster that hosts tenant databases and the
// admin credential used to provision them.
type TenantConfig struct {
	Host           string
	Port           int
	SSLMode        string
	AdminUser      string
	AdminPassword  string //nolint:gosec // G117: DB connection config
	MaintenanceDB  string
	DBPrefix       string
	RolePrefix     string
	ConnectTimeout time.Duration
}

// DiscoveryConfig tunes the scan that locates a login identifier's tenant.
type DiscoveryConfig struct {
	ProbeTimeout time.Duration
	Concurrency  int
	HintTTL      time.Duration
}

// PlanConfig holds plan and subscription settings.
type PlanConfig struct {
	OverridesPath    string
	DefaultPlan      string
	SubscriptionTerm time.Duration
}

// SecretsConfig holds the vault key sealing tenant credentials.
type SecretsConfig struct {
	Key string //nolint:gosec // G117: vault key config
}

// JWTConfig holds session token settings.
type JWTConfig struct {
	Secret     string //nolint:gosec // G117: JWT signing secret config
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// RedisConfig holds Redis connection settings. An empty Addr disables the
// discovery hint cache.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// AlertConfig holds operator alert settings.
type AlertConfig struct {
	SlackWebhookURL string
}

//nolint:gochecknoglobals // compiled once
var identPrefix = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,19}$`)

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, vault key, DB passwords) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("TILLPOINT_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("TILLPOINT_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	tenantPort, err := getEnvInt("TILLPOINT_TENANT_PORT", dbPort)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	connectTimeout, err := getEnvDuration("TILLPOINT_TENANT_CONNECT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	probeTimeout, err := getEnvDuration("TILLPOINT_DISCOVERY_PROBE_TIMEOUT", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	concurrency, err := getEnvInt("TILLPOINT_DISCOVERY_CONCURRENCY", 8)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	hintTTL, err := getEnvDuration("TILLPOINT_DISCOVERY_HINT_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	term, err := getEnvDuration("TILLPOINT_SUBSCRIPTION_TERM", 30*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("TILLPOINT_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	accessTTL, err := getEnvDuration("TILLPOINT_JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	refreshTTL, err := getEnvDuration("TILLPOINT_JWT_REFRESH_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("TILLPOINT_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("TILLPOINT_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	selfHosted, err := getEnvBool("TILLPOINT_SELF_HOSTED", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbHost := getEnv("TILLPOINT_DB_HOST", "localhost")
	dbSSL := getEnv("TILLPOINT_DB_SSLMODE", "disable")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     dbHost,
			Port:     dbPort,
			User:     getEnv("TILLPOINT_DB_USER", "tillpoint"),
			Password: getEnv("TILLPOINT_DB_PASSWORD", ""),
			DBName:   getEnv("TILLPOINT_DB_NAME", "tillpoint_control"),
			SSLMode:  dbSSL,
			MaxConns: dbMaxConns,
		},
		Tenant: TenantConfig{
			Host:           getEnv("TILLPOINT_TENANT_HOST", dbHost),
			Port:           tenantPort,
			SSLMode:        getEnv("TILLPOINT_TENANT_SSLMODE", dbSSL),
			AdminUser:      getEnv("TILLPOINT_TENANT_ADMIN_USER", "postgres"),
			AdminPassword:  getEnv("TILLPOINT_TENANT_ADMIN_PASSWORD", ""),
			MaintenanceDB:  getEnv("TILLPOINT_TENANT_MAINTENANCE_DB", "postgres"),
			DBPrefix:       getEnv("TILLPOINT_TENANT_DB_PREFIX", "pos_tenant_"),
			RolePrefix:     getEnv("TILLPOINT_TENANT_ROLE_PREFIX", "pos_u_"),
			ConnectTimeout: connectTimeout,
		},
		Discovery: DiscoveryConfig{
			ProbeTimeout: probeTimeout,
			Concurrency:  concurrency,
			HintTTL:      hintTTL,
		},
		Plans: PlanConfig{
			OverridesPath:    getEnv("TILLPOINT_PLAN_OVERRIDES", "plan_limits.yaml"),
			DefaultPlan:      getEnv("TILLPOINT_DEFAULT_PLAN", "Standard"),
			SubscriptionTerm: term,
		},
		Secrets: SecretsConfig{
			Key: getEnv("TILLPOINT_SECRETS_KEY", ""),
		},
		JWT: JWTConfig{
			Secret:     getEnv("TILLPOINT_JWT_SECRET", ""),
			AccessTTL:  accessTTL,
			RefreshTTL: refreshTTL,
		},
		Redis: RedisConfig{
			Addr:     getEnv("TILLPOINT_REDIS_ADDR", ""),
			Password: getEnv("TILLPOINT_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Server: ServerConfig{
			Addr:         getEnv("TILLPOINT_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  getEnvList("TILLPOINT_CORS_ORIGINS", []string{"http://localhost:5173"}),
		},
		Alerts: AlertConfig{
			SlackWebhookURL: getEnv("TILLPOINT_SLACK_WEBHOOK_URL", ""),
		},
		SelfHosted: selfHosted,
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return errors.New("TILLPOINT_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("TILLPOINT_JWT_SECRET must be at least 32 characters")
	}
	if len(c.Secrets.Key) != 64 {
		return errors.New("TILLPOINT_SECRETS_KEY must be 64 hex characters (32 bytes)")
	}

	if c.Database.SSLMode == "disable" && !c.SelfHosted {
		log.Warn().Msg("TILLPOINT_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("TILLPOINT_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Tenant.Port < 1 || c.Tenant.Port > 65535 {
		return fmt.Errorf("TILLPOINT_TENANT_PORT must be 1-65535, got %d", c.Tenant.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("TILLPOINT_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if !identPrefix.MatchString(c.Tenant.DBPrefix) {
		return fmt.Errorf("TILLPOINT_TENANT_DB_PREFIX must match %s, got %q", identPrefix, c.Tenant.DBPrefix)
	}
	if !identPrefix.MatchString(c.Tenant.RolePrefix) {
		return fmt.Errorf("TILLPOINT_TENANT_ROLE_PREFIX must match %s, got %q", identPrefix, c.Tenant.RolePrefix)
	}
	if c.Tenant.ConnectTimeout <= 0 {
		return fmt.Errorf("TILLPOINT_TENANT_CONNECT_TIMEOUT must be positive, got %s", c.Tenant.ConnectTimeout)
	}
	if c.Discovery.ProbeTimeout <= 0 {
		return fmt.Errorf("TILLPOINT_DISCOVERY_PROBE_TIMEOUT must be positive, got %s", c.Discovery.ProbeTimeout)
	}
	if c.Discovery.Concurrency < 1 {
		return fmt.Errorf("TILLPOINT_DISCOVERY_CONCURRENCY must be >= 1, got %d", c.Discovery.Concurrency)
	}
	if c.Discovery.HintTTL <= 0 {
		return fmt.Errorf("TILLPOINT_DISCOVERY_HINT_TTL must be positive, got %s", c.Discovery.HintTTL)
	}
	if c.Plans.SubscriptionTerm <= 0 {
		return fmt.Errorf("TILLPOINT_SUBSCRIPTION_TERM must be positive, got %s", c.Plans.SubscriptionTerm)
	}
	if c.Plans.DefaultPlan == "" {
		return errors.New("TILLPOINT_DEFAULT_PLAN must not be empty")
	}
	if c.JWT.AccessTTL <= 0 {
		return fmt.Errorf("TILLPOINT_JWT_ACCESS_TTL must be positive, got %s", c.JWT.AccessTTL)
	}
	if c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("TILLPOINT_JWT_REFRESH_TTL must be positive, got %s", c.JWT.RefreshTTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("TILLPOINT_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("TILLPOINT_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}

	return nil
}

// DSN returns the control-plane PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return dsn(c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode, 0)
}

// DSN returns a connection string for database on the tenant cluster.
func (c *TenantConfig) DSN(database, user, password string) string {
	return dsn(c.Host, c.Port, user, password, database, c.SSLMode, c.ConnectTimeout)
}

// AdminDSN returns the admin connection string for database. An empty
// database targets the maintenance database.
func (c *TenantConfig) AdminDSN(database string) string {
	if database == "" {
		database = c.MaintenanceDB
	}
	return c.DSN(database, c.AdminUser, c.AdminPassword)
}

func dsn(host string, port int, user, password, dbname, sslmode string, connectTimeout time.Duration) string {
	s := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quote(host), port, quote(user), quote(password), quote(dbname), quote(sslmode),
	)
	if secs := int(connectTimeout / time.Second); secs > 0 {
		s += fmt.Sprintf(" connect_timeout=%d", secs)
	}
	return s
}

// quote renders a libpq keyword/value connection string value.
func quote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
