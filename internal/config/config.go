package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const DefaultCollectorURL = "https://plugins.robertdevore.com/wp-json/telemetry-tracker/v1/track/"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Stats    StatsConfig    `yaml:"stats"`
}

type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	BodyLimit int    `yaml:"body_limit"`
}

type LoggingConfig struct {
	File string `yaml:"file"`
}

type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Name            string `yaml:"name"`
	SSLMode         string `yaml:"sslmode"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"`
}

// TrackerConfig drives the collector's own install pings.
type TrackerConfig struct {
	Enabled        bool   `yaml:"enabled"`
	CollectorURL   string `yaml:"collector_url"`
	PluginSlug     string `yaml:"plugin_slug"`
	PluginVersion  string `yaml:"plugin_version"`
	SiteURL        string `yaml:"site_url"`
	InstanceID     string `yaml:"instance_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type StatsConfig struct {
	ActiveWindowDays int `yaml:"active_window_days"`
}

var (
	cfg                *Config
	once               sync.Once
	ErrConfigGenerated = fmt.Errorf("config file generated")
)

func Load(path string) (*Config, error) {
	var loadErr error

	once.Do(func() {
		cfg, loadErr = load(path)
	})

	return cfg, loadErr
}

func load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := generateDefaultConfig(path); err != nil {
			return nil, fmt.Errorf("failed to generate config: %w", err)
		}
		return nil, ErrConfigGenerated
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, err
	}

	needsSave := c.Tracker.InstanceID == ""
	c.setDefaults()
	c.loadEnvOverrides()

	if needsSave {
		saveInstanceID(path, c.Tracker.InstanceID)
	}

	return c, nil
}

// Parse decodes raw yaml without touching defaults, env or the file system.
func Parse(data []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return c, nil
}

func saveInstanceID(path, id string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	content := string(data)
	if strings.Contains(content, "instance_id:") || !strings.Contains(content, "tracker:") {
		return
	}
	content = strings.Replace(content, "tracker:", "tracker:\n  instance_id: \""+id+"\"", 1)
	os.WriteFile(path, []byte(content), 0644)
}

func Get() *Config {
	return cfg
}

func generateDefaultConfig(path string) error {
	defaultConfig := `server:
  host: "0.0.0.0"
  port: 3000
  body_limit: 65536

logging:
  file: "logs/telemetry.log"

database:
  driver: "postgres"
  host: "localhost"
  port: 5432
  user: "postgres"
  password: ""
  name: "telemetry"
  sslmode: "disable"
  max_open_conns: 25
  max_idle_conns: 5
  conn_max_lifetime: 300

tracker:
  enabled: false
  collector_url: "` + DefaultCollectorURL + `"
  plugin_slug: "telemetry-tracker"
  plugin_version: "1.0.1"
  site_url: ""
  timeout_seconds: 5

stats:
  active_window_days: 8
`

	return os.WriteFile(path, []byte(defaultConfig), 0644)
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.BodyLimit == 0 {
		c.Server.BodyLimit = 64 * 1024
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case "mysql":
			c.Database.Port = 3306
		default:
			c.Database.Port = 5432
		}
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 300
	}
	if c.Tracker.CollectorURL == "" {
		c.Tracker.CollectorURL = DefaultCollectorURL
	}
	if c.Tracker.PluginSlug == "" {
		c.Tracker.PluginSlug = "telemetry-tracker"
	}
	if c.Tracker.PluginVersion == "" {
		c.Tracker.PluginVersion = "1.0.1"
	}
	if c.Tracker.InstanceID == "" {
		c.Tracker.InstanceID = uuid.NewString()
	}
	if c.Tracker.SiteURL == "" {
		c.Tracker.SiteURL = "urn:uuid:" + c.Tracker.InstanceID
	}
	if c.Tracker.TimeoutSeconds <= 0 {
		c.Tracker.TimeoutSeconds = 5
	}
	if c.Stats.ActiveWindowDays <= 0 {
		c.Stats.ActiveWindowDays = 8
	}
}

func (c *Config) loadEnvOverrides() {
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.Name = v
	}
	if v := os.Getenv("TRACKER_COLLECTOR_URL"); v != "" {
		c.Tracker.CollectorURL = v
	}
}

func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "mysql":
		mc := mysqldriver.NewConfig()
		mc.User = d.User
		mc.Passwd = d.Password
		mc.Net = "tcp"
		mc.Addr = fmt.Sprintf("%s:%d", d.Host, d.Port)
		mc.DBName = d.Name
		mc.ParseTime = true
		mc.Params = map[string]string{"charset": "utf8mb4"}
		return mc.FormatDSN()
	case "sqlite":
		return d.Name
	default:
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	}
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (t *TrackerConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

func (s *StatsConfig) ActiveWindow() time.Duration {
	return time.Duration(s.ActiveWindowDays) * 24 * time.Hour
}
