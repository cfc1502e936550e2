package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all the environment-based configurations.
type Config struct {
	Device      DeviceConfig   `yaml:"device"`
	Database    DatabaseConfig `yaml:"database"`
	Redis       RedisConfig    `yaml:"redis"`
	Radius      RadiusConfig   `yaml:"radius"`
	MetricsAddr string         `yaml:"metrics_addr"`
	LogFilePath string         `yaml:"log_file_path"`
	LogLevel    string         `yaml:"log_level"`
}

// DeviceConfig points at the router's REST management API.
type DeviceConfig struct {
	Host     string        `yaml:"host"`
	Port     string        `yaml:"port"`
	Scheme   string        `yaml:"scheme"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// BaseURL returns the API root, e.g. http://192.168.1.1:8728/api.
func (d DeviceConfig) BaseURL() string {
	return fmt.Sprintf("%s://%s:%s/api", d.Scheme, d.Host, d.Port)
}

// DatabaseConfig describes the FreeRADIUS accounting database and its pool.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// DataSourceName returns DSN when set, otherwise builds one for the driver.
func (d DatabaseConfig) DataSourceName() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver == "sqlite" {
		return d.Name
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// RedisConfig configures the token cache and audit journal.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RadiusConfig configures the accounting listener and disconnect client.
type RadiusConfig struct {
	Port       string        `yaml:"port"`
	Secret     string        `yaml:"secret"`
	CoAPort    string        `yaml:"coa_port"`
	CoATimeout time.Duration `yaml:"coa_timeout"`
}

func defaults() Config {
	return Config{
		Device: DeviceConfig{
			Host:     "192.168.1.1",
			Port:     "8728",
			Scheme:   "http",
			Username: "admin",
			Password: "password",
			Timeout:  10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            "5432",
			User:            "radius",
			Password:        "radius_password",
			Name:            "radius",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			QueryTimeout:    30 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Radius: RadiusConfig{
			Port:       "1813",
			Secret:     "testing123",
			CoAPort:    "3799",
			CoATimeout: 3 * time.Second,
		},
		MetricsAddr: ":9100",
		LogFilePath: "/var/log/hotspot-console.log",
		LogLevel:    "info",
	}
}

// Load reads the configuration from environment variables.
func Load() Config {
	cfg := defaults()
	applyEnv(&cfg)
	return cfg
}

// LoadFile reads a YAML file over the defaults, then applies environment
// variables on top so the environment always wins.
func LoadFile(path string) (Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	applyEnv(&cfg)
	return cfg, nil
}

// Resolve loads path when it is set and the environment alone otherwise.
func Resolve(path string) (Config, error) {
	if path == "" {
		return Load(), nil
	}
	return LoadFile(path)
}

func applyEnv(c *Config) {
	setString(&c.Device.Host, "MIKROTIK_IP")
	setString(&c.Device.Port, "MIKROTIK_PORT")
	setString(&c.Device.Scheme, "MIKROTIK_SCHEME")
	setString(&c.Device.Username, "MIKROTIK_USERNAME")
	setString(&c.Device.Password, "MIKROTIK_PASSWORD")
	setDuration(&c.Device.Timeout, "DEVICE_TIMEOUT")

	setString(&c.Database.Driver, "FREERADIUS_DB_DRIVER")
	setString(&c.Database.DSN, "FREERADIUS_DB_DSN")
	setString(&c.Database.Host, "FREERADIUS_DB_HOST")
	setString(&c.Database.Port, "FREERADIUS_DB_PORT")
	setString(&c.Database.User, "FREERADIUS_DB_USER")
	setString(&c.Database.Password, "FREERADIUS_DB_PASSWORD")
	setString(&c.Database.Name, "FREERADIUS_DB_NAME")
	setString(&c.Database.SSLMode, "FREERADIUS_DB_SSLMODE")
	setInt(&c.Database.MaxOpenConns, "DB_MAX_OPEN_CONNS")
	setInt(&c.Database.MaxIdleConns, "DB_MAX_IDLE_CONNS")
	setDuration(&c.Database.ConnMaxLifetime, "DB_CONN_MAX_LIFETIME")
	setDuration(&c.Database.QueryTimeout, "DB_QUERY_TIMEOUT")

	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setInt(&c.Redis.DB, "REDIS_DB")

	setString(&c.Radius.Port, "RADIUS_PORT")
	setString(&c.Radius.Secret, "RADIUS_SECRET")
	setString(&c.Radius.CoAPort, "COA_PORT")
	setDuration(&c.Radius.CoATimeout, "COA_TIMEOUT")

	setString(&c.MetricsAddr, "METRICS_ADDR")
	setString(&c.LogFilePath, "LOG_FILE_PATH")
	setString(&c.LogLevel, "LOG_LEVEL")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func setString(dst *string, key string) {
	*dst = getEnv(key, *dst)
}

// Malformed numeric values keep the previous setting.
func setInt(dst *int, key string) {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		*dst = n
	}
}

func setDuration(dst *time.Duration, key string) {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil {
		*dst = d
	}
}
