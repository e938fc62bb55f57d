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
	"gopkg.in/yaml.v3"
)

const envPrefix = "EQUIPMENT_MONITOR_"

// Config captures every setting the monitor needs to boot.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Clients    ClientsConfig    `yaml:"clients"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Logging    LoggingConfig    `yaml:"logging"`
	Vocabulary VocabularyConfig `yaml:"vocabulary"`
	Cache      CacheConfig      `yaml:"cache"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Notify     NotifyConfig     `yaml:"notify"`
}

// ServerConfig controls the gRPC, REST and metrics listeners.
type ServerConfig struct {
	GRPCAddress     string        `yaml:"grpcAddress"`
	HTTPAddress     string        `yaml:"httpAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// ClientsConfig groups upstream integrations.
type ClientsConfig struct {
	Factory FactoryClientConfig `yaml:"factory"`
}

// FactoryClientConfig configures access to the factory backend.
type FactoryClientConfig struct {
	BaseURL             string        `yaml:"baseURL"`
	DetectedContentPath string        `yaml:"detectedContentPath"`
	DeviceDataPath      string        `yaml:"deviceDataPath"`
	Timeout             time.Duration `yaml:"timeout"`
}

// MonitorConfig controls the polling loop and its initial selection.
type MonitorConfig struct {
	PollInterval  time.Duration `yaml:"pollInterval"`
	DefaultDevice string        `yaml:"defaultDevice"`
	DefaultWindow WindowConfig  `yaml:"defaultWindow"`
	HotspotLimit  int           `yaml:"hotspotLimit"`
}

// WindowConfig is the initial query window. Empty dates mean "today".
type WindowConfig struct {
	StartDate string `yaml:"startDate"`
	StartTime string `yaml:"startTime"`
	EndDate   string `yaml:"endDate"`
	EndTime   string `yaml:"endTime"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// VocabularyConfig locates the parameter vocabulary file.
type VocabularyConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// CacheConfig controls the Redis-backed roster cache and notification de-duplication.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	KeyPrefix    string        `yaml:"keyPrefix"`
	RosterTTL    time.Duration `yaml:"rosterTTL"`
	DedupeTTL    time.Duration `yaml:"dedupeTTL"`
}

// TracingConfig configures the OTLP exporter. An empty endpoint disables tracing.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sampleRatio"`
	ServiceName string  `yaml:"serviceName"`
}

// NotifyConfig configures anomaly publication to RabbitMQ. An empty URL disables it.
type NotifyConfig struct {
	URL         string `yaml:"url"`
	Exchange    string `yaml:"exchange"`
	RoutingKey  string `yaml:"routingKey"`
	MinSeverity string `yaml:"minSeverity"`
}

// Load reads .env (if present), then the YAML file, then EQUIPMENT_MONITOR_* overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the monitor cannot run with.
func (c *Config) Validate() error {
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.pollInterval must be positive, got %s", c.Monitor.PollInterval)
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return errors.New("cache.addr is required when cache is enabled")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sampleRatio must be within [0,1], got %v", c.Tracing.SampleRatio)
	}
	switch strings.ToLower(c.Notify.MinSeverity) {
	case "", "low", "medium", "high":
	default:
		return fmt.Errorf("notify.minSeverity %q is not low, medium or high", c.Notify.MinSeverity)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			GRPCAddress:     ":50051",
			HTTPAddress:     ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Clients: ClientsConfig{
			Factory: FactoryClientConfig{
				DetectedContentPath: "/api/AREditior/GetDetectedContent",
				DeviceDataPath:      "/api/AREditior/GetDeviceData",
				Timeout:             8 * time.Second,
			},
		},
		Monitor: MonitorConfig{
			PollInterval: 10 * time.Second,
			DefaultWindow: WindowConfig{
				StartTime: "00:00",
				EndTime:   "23:59",
			},
			HotspotLimit: 5,
		},
		Logging:    LoggingConfig{Level: "info", JSON: false},
		Vocabulary: VocabularyConfig{Path: "configs/vocabulary/default.yaml", Watch: true},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			KeyPrefix:    "equipment-monitor:",
			RosterTTL:    30 * time.Second,
			DedupeTTL:    24 * time.Hour,
		},
		Tracing: TracingConfig{
			Insecure:    true,
			SampleRatio: 1,
			ServiceName: "equipment-monitor",
		},
		Notify: NotifyConfig{
			Exchange:    "equipment.anomalies",
			RoutingKey:  "anomaly",
			MinSeverity: "high",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.GRPCAddress, "GRPC_ADDRESS")
	setString(&cfg.Server.HTTPAddress, "HTTP_ADDRESS")
	setString(&cfg.Server.MetricsAddress, "METRICS_ADDRESS")
	setDuration(&cfg.Server.GracefulTimeout, "GRACEFUL_TIMEOUT")

	setString(&cfg.Clients.Factory.BaseURL, "FACTORY_BASE_URL")
	setString(&cfg.Clients.Factory.DetectedContentPath, "FACTORY_DETECTED_CONTENT_PATH")
	setString(&cfg.Clients.Factory.DeviceDataPath, "FACTORY_DEVICE_DATA_PATH")
	setDuration(&cfg.Clients.Factory.Timeout, "FACTORY_TIMEOUT")

	setDuration(&cfg.Monitor.PollInterval, "POLL_INTERVAL")
	setString(&cfg.Monitor.DefaultDevice, "DEFAULT_DEVICE")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v != "" {
		cfg.Logging.JSON = strings.EqualFold(v, "json")
	}

	setString(&cfg.Vocabulary.Path, "VOCABULARY_PATH")
	setBool(&cfg.Vocabulary.Watch, "VOCABULARY_WATCH")

	setBool(&cfg.Cache.Enabled, "CACHE_ENABLED")
	setString(&cfg.Cache.Addr, "CACHE_ADDR")
	setString(&cfg.Cache.Username, "CACHE_USERNAME")
	setString(&cfg.Cache.Password, "CACHE_PASSWORD")
	setInt(&cfg.Cache.DB, "CACHE_DB")
	setDuration(&cfg.Cache.DialTimeout, "CACHE_DIAL_TIMEOUT")
	setDuration(&cfg.Cache.ReadTimeout, "CACHE_READ_TIMEOUT")
	setDuration(&cfg.Cache.WriteTimeout, "CACHE_WRITE_TIMEOUT")
	setInt(&cfg.Cache.MaxRetries, "CACHE_MAX_RETRIES")
	setDuration(&cfg.Cache.RosterTTL, "CACHE_ROSTER_TTL")
	setDuration(&cfg.Cache.DedupeTTL, "CACHE_DEDUPE_TTL")

	setString(&cfg.Tracing.Endpoint, "OTLP_ENDPOINT")
	setBool(&cfg.Tracing.Insecure, "OTLP_INSECURE")
	if v := os.Getenv(envPrefix + "TRACE_SAMPLE_RATIO"); v != "" {
		if ratio, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tracing.SampleRatio = ratio
		}
	}

	setString(&cfg.Notify.URL, "AMQP_URL")
	setString(&cfg.Notify.Exchange, "AMQP_EXCHANGE")
	setString(&cfg.Notify.RoutingKey, "AMQP_ROUTING_KEY")
	setString(&cfg.Notify.MinSeverity, "NOTIFY_MIN_SEVERITY")
}

func setString(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
