package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all relay configuration
type Config struct {
	App       AppConfig
	Log       LogConfig
	Database  DatabaseConfig
	Mikro     MikroConfig
	Relay     RelayConfig
	Watermark WatermarkConfig
	Redis     RedisConfig
	Storage   StorageConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// DatabaseConfig holds the shop database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	QueryTimeout    time.Duration
	// Source table names; identifiers are case-sensitive
	OrdersTable     string
	OrderItemsTable string
	UsersTable      string
	ProductsTable   string
}

// MikroConfig holds the ERP endpoint and account settings
type MikroConfig struct {
	BaseURL       string
	LoginPath     string
	OrderSavePath string
	APIKey        string
	CompanyCode   string
	UserCode      string
	Timeout       time.Duration
}

// RelayConfig holds the polling loop settings
type RelayConfig struct {
	PollInterval      time.Duration // fixed sleep between cycles
	StopCheckInterval time.Duration // granularity of the stop check while sleeping
	CycleTimeout      time.Duration
	HistorySize       int
	AutoStart         bool
}

// WatermarkConfig selects and configures the watermark backend
type WatermarkConfig struct {
	Backend  string // file, redis, s3
	FilePath string
	Label    string
	Key      string // redis key or s3 object key
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// StorageConfig holds S3-compatible object storage settings
type StorageConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// HTTPConfig holds the control server settings
type HTTPConfig struct {
	Enabled      bool
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string  // OTLP gRPC endpoint, e.g. localhost:4317
	SamplingRatio     float64 // 0.0-1.0
	ServiceName       string
	Insecure          bool
	MetricsInterval   time.Duration
	LogsEnabled       bool
	LogsLevel         string
}

// legacyEnv maps keys to the variable names of the legacy deployment.
var legacyEnv = map[string]string{
	"database.host":      "DB_HOST",
	"database.port":      "DB_PORT",
	"database.dbname":    "DB_NAME",
	"database.user":      "DB_USER",
	"database.password":  "DB_PASS",
	"mikro.company_code": "FIRMA_KODU",
	"mikro.user_code":    "KULLANICI_KODU",
	"mikro.api_key":      "API_KEY",
}

// EnvPrefix is the prefix of environment variable overrides
const EnvPrefix = "MIKROSYNC"

// Load loads configuration from config.toml and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with MIKROSYNC_ prefix (e.g. MIKROSYNC_MIKRO_API_KEY)
// 2. Legacy variables (DB_HOST, API_KEY, ...)
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/mikrosync")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			QueryTimeout:    v.GetDuration("database.query_timeout"),
			OrdersTable:     v.GetString("database.orders_table"),
			OrderItemsTable: v.GetString("database.order_items_table"),
			UsersTable:      v.GetString("database.users_table"),
			ProductsTable:   v.GetString("database.products_table"),
		},
		Mikro: MikroConfig{
			BaseURL:       v.GetString("mikro.base_url"),
			LoginPath:     v.GetString("mikro.login_path"),
			OrderSavePath: v.GetString("mikro.order_save_path"),
			APIKey:        v.GetString("mikro.api_key"),
			CompanyCode:   v.GetString("mikro.company_code"),
			UserCode:      v.GetString("mikro.user_code"),
			Timeout:       v.GetDuration("mikro.timeout"),
		},
		Relay: RelayConfig{
			PollInterval:      v.GetDuration("relay.poll_interval"),
			StopCheckInterval: v.GetDuration("relay.stop_check_interval"),
			CycleTimeout:      v.GetDuration("relay.cycle_timeout"),
			HistorySize:       v.GetInt("relay.history_size"),
			AutoStart:         v.GetBool("relay.auto_start"),
		},
		Watermark: WatermarkConfig{
			Backend:  v.GetString("watermark.backend"),
			FilePath: v.GetString("watermark.file_path"),
			Label:    v.GetString("watermark.label"),
			Key:      v.GetString("watermark.key"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Storage: StorageConfig{
			Endpoint:        v.GetString("storage.endpoint"),
			Region:          v.GetString("storage.region"),
			Bucket:          v.GetString("storage.bucket"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
		},
		HTTP: HTTPConfig{
			Enabled:      !v.IsSet("http.enabled") || v.GetBool("http.enabled"),
			Address:      v.GetString("http.address"),
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
			IdleTimeout:  v.GetDuration("http.idle_timeout"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			LogsLevel:         v.GetString("telemetry.logs_level"),
		},
	}
	if !v.IsSet("relay.auto_start") {
		cfg.Relay.AutoStart = true
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "mikrosync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 4
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30
	}
	if cfg.Database.QueryTimeout == 0 {
		cfg.Database.QueryTimeout = 10 * time.Second
	}
	if cfg.Database.OrdersTable == "" {
		cfg.Database.OrdersTable = "Orders"
	}
	if cfg.Database.OrderItemsTable == "" {
		cfg.Database.OrderItemsTable = "OrderItems"
	}
	if cfg.Database.UsersTable == "" {
		cfg.Database.UsersTable = "Users"
	}
	if cfg.Database.ProductsTable == "" {
		cfg.Database.ProductsTable = "Products"
	}
	if cfg.Mikro.BaseURL == "" {
		cfg.Mikro.BaseURL = "http://localhost:8094"
	}
	if cfg.Mikro.LoginPath == "" {
		cfg.Mikro.LoginPath = "/Api/APIMethods/APILogin"
	}
	if cfg.Mikro.OrderSavePath == "" {
		cfg.Mikro.OrderSavePath = "/Api/APIMethods/SiparisKaydetV2"
	}
	if cfg.Mikro.Timeout == 0 {
		cfg.Mikro.Timeout = 30 * time.Second
	}
	if cfg.Relay.PollInterval == 0 {
		cfg.Relay.PollInterval = 120 * time.Second
	}
	if cfg.Relay.StopCheckInterval == 0 {
		cfg.Relay.StopCheckInterval = 100 * time.Millisecond
	}
	if cfg.Relay.CycleTimeout == 0 {
		cfg.Relay.CycleTimeout = 5 * time.Minute
	}
	if cfg.Relay.HistorySize == 0 {
		cfg.Relay.HistorySize = 100
	}
	if cfg.Watermark.Backend == "" {
		cfg.Watermark.Backend = "file"
	}
	if cfg.Watermark.FilePath == "" {
		cfg.Watermark.FilePath = "docs/latest_order_code.txt"
	}
	if cfg.Watermark.Label == "" {
		cfg.Watermark.Label = "En son oluşturulan sipariş kodu"
	}
	if cfg.Watermark.Key == "" {
		cfg.Watermark.Key = "mikrosync/latest_order_code"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.HTTP.Address == "" {
		cfg.HTTP.Address = ":8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 10 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 10 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "mikrosync"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.LogsLevel == "" {
		cfg.Telemetry.LogsLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.Database.DBName == "" {
		return fmt.Errorf("database.dbname is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if _, err := url.ParseRequestURI(c.Mikro.BaseURL); err != nil {
		return fmt.Errorf("mikro.base_url is invalid: %w", err)
	}

	if c.Relay.StopCheckInterval > c.Relay.PollInterval {
		return fmt.Errorf("relay.stop_check_interval (%s) cannot exceed relay.poll_interval (%s)",
			c.Relay.StopCheckInterval, c.Relay.PollInterval)
	}

	switch c.Watermark.Backend {
	case "file":
	case "redis":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 watermark backend")
		}
	default:
		return fmt.Errorf("watermark.backend must be one of file, redis, s3, got %q", c.Watermark.Backend)
	}

	if c.App.Env == "production" {
		if c.Mikro.APIKey == "" || c.Mikro.CompanyCode == "" || c.Mikro.UserCode == "" {
			return fmt.Errorf("mikro.api_key, mikro.company_code and mikro.user_code are required in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the PostgreSQL connection URL
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
