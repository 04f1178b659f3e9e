package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported storage drivers, selected by the scheme of the database URL.
const (
	DriverSQLite     = "sqlite"
	DriverMySQL      = "mysql"
	DriverClickHouse = "clickhouse"
	DriverBolt       = "bolt"
)

// DatabaseConfig selects and addresses the record store.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// Driver returns the storage driver named by the URL scheme.
func (c DatabaseConfig) Driver() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("invalid database url: %w", err)
	}
	switch u.Scheme {
	case DriverSQLite, DriverMySQL, DriverClickHouse, DriverBolt:
		return u.Scheme, nil
	case "":
		return "", fmt.Errorf("database url %q has no scheme", c.URL)
	default:
		return "", fmt.Errorf("unsupported database driver: '%s'", u.Scheme)
	}
}

// CaptureConfig controls how capture files are read and classified.
type CaptureConfig struct {
	Directory         string `yaml:"directory"`
	MaxPacketsPerFile int    `yaml:"max_packets_per_file"`
	Workers           int    `yaml:"workers"`
}

// StorageConfig controls batched inserts.
type StorageConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// ExportConfig controls the JSON report writer.
type ExportConfig struct {
	OutputFile        string `yaml:"output_file"`
	IncludeStatistics bool   `yaml:"include_statistics"`
}

// RotationConfig mirrors the lumberjack rotation knobs.
type RotationConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level    string         `yaml:"level"`
	Format   string         `yaml:"format"`
	File     string         `yaml:"file"`
	Rotation RotationConfig `yaml:"rotation"`
}

// APIConfig holds the listen addresses of the query surfaces.
type APIConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	GRPCListenAddr string `yaml:"grpc_listen_addr"`
}

// ProbeConfig holds settings for record streaming.
type ProbeConfig struct {
	NATSURL       string `yaml:"nats_url"`
	Subject       string `yaml:"subject"`
	FlushSize     int    `yaml:"flush_size"`
	FlushInterval string `yaml:"flush_interval"`
}

// AlerterRule defines a single threshold rule evaluated against a report.
type AlerterRule struct {
	Name      string  `yaml:"name"`
	Metric    string  `yaml:"metric"`
	Operator  string  `yaml:"operator"`
	Threshold float64 `yaml:"threshold"`
}

// AlerterConfig holds the alert rules. CheckInterval, when set, makes the
// API server re-evaluate the rules against the whole store periodically.
type AlerterConfig struct {
	Enabled       bool          `yaml:"enabled"`
	CheckInterval string        `yaml:"check_interval"`
	Rules         []AlerterRule `yaml:"rules"`
}

// SMTPConfig holds the settings of the e-mail notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Capture  CaptureConfig  `yaml:"capture"`
	Storage  StorageConfig  `yaml:"storage"`
	Export   ExportConfig   `yaml:"export"`
	Log      LogConfig      `yaml:"log"`
	API      APIConfig      `yaml:"api"`
	Probe    ProbeConfig    `yaml:"probe"`
	Alerter  AlerterConfig  `yaml:"alerter"`
	SMTP     SMTPConfig     `yaml:"smtp"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{URL: "sqlite:///traffic_data.db"},
		Capture: CaptureConfig{
			Directory:         "./pcap_files",
			MaxPacketsPerFile: 10000,
		},
		Storage: StorageConfig{BatchSize: 1000},
		Export: ExportConfig{
			OutputFile:        "./traffic_export.json",
			IncludeStatistics: true,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		API: APIConfig{
			ListenAddr:     ":8080",
			GRPCListenAddr: ":50051",
		},
		Probe: ProbeConfig{
			NATSURL:       "nats://127.0.0.1:4222",
			Subject:       "pcapledger.records",
			FlushSize:     500,
			FlushInterval: "5s",
		},
		SMTP: SMTPConfig{Port: 587},
	}
}

// LoadConfig reads the configuration from a YAML file on top of the defaults
// and applies environment overrides. An empty path means defaults plus
// environment.
func LoadConfig(filePath string) (*Config, error) {
	cfg := Default()

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DATABASE_URL":     &c.Database.URL,
		"PCAP_DIRECTORY":   &c.Capture.Directory,
		"OUTPUT_JSON_FILE": &c.Export.OutputFile,
		"LOG_LEVEL":        &c.Log.Level,
		"NATS_URL":         &c.Probe.NATSURL,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"BATCH_SIZE":           &c.Storage.BatchSize,
		"MAX_PACKETS_PER_FILE": &c.Capture.MaxPacketsPerFile,
		"EXTRACT_WORKERS":      &c.Capture.Workers,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
	}
	return nil
}

// Validate rejects settings the rest of the application cannot work with.
func (c *Config) Validate() error {
	if _, err := c.Database.Driver(); err != nil {
		return err
	}
	if c.Storage.BatchSize <= 0 {
		return fmt.Errorf("storage.batch_size must be positive, got %d", c.Storage.BatchSize)
	}
	if c.Capture.MaxPacketsPerFile < 0 {
		return fmt.Errorf("capture.max_packets_per_file must not be negative, got %d", c.Capture.MaxPacketsPerFile)
	}
	if c.Capture.Workers < 0 {
		return fmt.Errorf("capture.workers must not be negative, got %d", c.Capture.Workers)
	}
	if c.Probe.FlushSize <= 0 {
		return fmt.Errorf("probe.flush_size must be positive, got %d", c.Probe.FlushSize)
	}
	if _, err := c.Probe.Interval(); err != nil {
		return err
	}
	if c.Alerter.CheckInterval != "" {
		if _, err := time.ParseDuration(c.Alerter.CheckInterval); err != nil {
			return fmt.Errorf("invalid alerter.check_interval: %w", err)
		}
	}
	return nil
}

// Interval parses FlushInterval.
func (c ProbeConfig) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(c.FlushInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid probe.flush_interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("probe.flush_interval must be a positive duration")
	}
	return d, nil
}
