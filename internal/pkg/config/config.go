package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Export    ExportConfig    `mapstructure:"export"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// DSN builds a postgres URL. User and password are escaped.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// RemoteConfig locates the water isotope site service.
type RemoteConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	SitesPath    string        `mapstructure:"sites_path"`
	SiteInfoPath string        `mapstructure:"site_info_path"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	Offline      bool          `mapstructure:"offline"` // never touch the network
}

// StorageConfig selects where the project collection and site cache are persisted.
type StorageConfig struct {
	Driver       string `mapstructure:"driver"` // file | valkey | postgres
	Dir          string `mapstructure:"dir"`
	ProjectsBlob string `mapstructure:"projects_blob"`
	SitesBlob    string `mapstructure:"sites_blob"`
	ValkeyPrefix string `mapstructure:"valkey_prefix"`
}

type SyncConfig struct {
	WindowHalfWidthKm float64 `mapstructure:"window_half_width_km"`
	StabilizeMeters   float64 `mapstructure:"stabilize_meters"`
	MaxZoomSpan       float64 `mapstructure:"max_zoom_span"`
	DispatchBuffer    int     `mapstructure:"dispatch_buffer"`
}

type ExportConfig struct {
	DateLayout string `mapstructure:"date_layout"`
	TimeLayout string `mapstructure:"time_layout"`
}

// SnapshotConfig drives the scheduled persistence worker.
type SnapshotConfig struct {
	APIURL       string `mapstructure:"api_url"`
	Cron         string `mapstructure:"cron"`
	TemporalHost string `mapstructure:"temporal_host"`
	TaskQueue    string `mapstructure:"task_queue"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: FIELDSYNC_STORAGE_DRIVER → storage.driver
	v.SetEnvPrefix("FIELDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "fieldsync")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "fieldsync")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("remote.base_url", "https://wateriso.utah.edu/api")
	v.SetDefault("remote.sites_path", "/sites_for_mobile.php")
	v.SetDefault("remote.site_info_path", "/siteinfo.php")
	v.SetDefault("remote.timeout", "30s")
	v.SetDefault("remote.probe_timeout", "3s")
	v.SetDefault("remote.offline", false)
	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.dir", "./data")
	v.SetDefault("storage.projects_blob", "projects")
	v.SetDefault("storage.sites_blob", "cachedSites")
	v.SetDefault("storage.valkey_prefix", "fieldsync")
	v.SetDefault("sync.window_half_width_km", 10.0)
	v.SetDefault("sync.stabilize_meters", 5.0)
	v.SetDefault("sync.max_zoom_span", 0.05)
	v.SetDefault("sync.dispatch_buffer", 64)
	v.SetDefault("export.date_layout", "1/2/06")
	v.SetDefault("export.time_layout", "3:04 PM")
	v.SetDefault("snapshot.api_url", "http://localhost:8080")
	v.SetDefault("snapshot.cron", "*/15 * * * *")
	v.SetDefault("snapshot.temporal_host", "localhost:7233")
	v.SetDefault("snapshot.task_queue", "fieldsync-snapshots")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	switch c.Storage.Driver {
	case "file":
		if c.Storage.Dir == "" {
			errs = append(errs, "storage.dir is required for the file driver")
		}
	case "valkey":
		if c.Valkey.Addr == "" {
			errs = append(errs, "valkey.addr is required for the valkey driver")
		}
	case "postgres":
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required for the postgres driver")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required for the postgres driver")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required for the postgres driver")
		}
		if c.Database.MaxConns < 1 {
			errs = append(errs, "database.max_conns must be at least 1")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.driver must be file, valkey or postgres, got %q", c.Storage.Driver))
	}
	if c.Storage.ProjectsBlob == "" || c.Storage.SitesBlob == "" {
		errs = append(errs, "storage.projects_blob and storage.sites_blob are required")
	} else if c.Storage.ProjectsBlob == c.Storage.SitesBlob {
		errs = append(errs, "storage.projects_blob and storage.sites_blob must differ")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required when nats is enabled")
	}
	if !c.Remote.Offline && c.Remote.BaseURL == "" {
		errs = append(errs, "remote.base_url is required unless remote.offline is set")
	}
	if c.Remote.Timeout <= 0 {
		errs = append(errs, "remote.timeout must be positive")
	}
	if c.Remote.ProbeTimeout <= 0 {
		errs = append(errs, "remote.probe_timeout must be positive")
	}

	if c.Sync.WindowHalfWidthKm <= 0 {
		errs = append(errs, "sync.window_half_width_km must be positive")
	}
	if c.Sync.StabilizeMeters <= 0 {
		errs = append(errs, "sync.stabilize_meters must be positive")
	}
	if c.Sync.MaxZoomSpan <= 0 {
		errs = append(errs, "sync.max_zoom_span must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
