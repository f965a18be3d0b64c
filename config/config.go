// Package config loads hub configuration from config/<env>.toml overlaid with APP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/clutchride/hub/internal/files"
	"github.com/spf13/viper"
)

const EnvPrefix = "APP"

type Config struct {
	LogLevel           string
	LogFile            string
	ListenAddr         string
	ServeMetricAddr    string
	ClutchNodeWSSURL   string
	ClutchNodeCAFile   string
	ClutchNodeCertFile string
	ClutchNodeKeyFile  string
	JWTSecret          string
	JWTExpirationHours int
	RequestTimeout     time.Duration
	ReconnectBackoff   time.Duration

	// File is the config file that was loaded, if any.
	File string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("listen_addr", "127.0.0.1:8080")
	v.SetDefault("serve_metric_addr", "127.0.0.1:9090")
	v.SetDefault("clutch_node_wss_url", "")
	v.SetDefault("clutch_node_ca_file", "")
	v.SetDefault("clutch_node_cert_file", "")
	v.SetDefault("clutch_node_key_file", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_expiration_hours", 24)
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("reconnect_backoff", "5s")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// Load loads the configuration for env, searching upward from the working directory for config/<env>.toml.
// The file is optional, in which case only defaults and the environment are used.
func Load(env string) (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working dir: %w", err)
	}
	path, err := files.FindUp(filepath.Join("config", env+".toml"), wd)
	if err != nil {
		return nil, fmt.Errorf("finding config file for env %q: %w", env, err)
	}
	return LoadFile(path)
}

// LoadFile loads the configuration from path, which may be empty to skip the file.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	c := &Config{
		LogLevel:           v.GetString("log_level"),
		LogFile:            v.GetString("log_file"),
		ListenAddr:         v.GetString("listen_addr"),
		ServeMetricAddr:    v.GetString("serve_metric_addr"),
		ClutchNodeWSSURL:   v.GetString("clutch_node_wss_url"),
		ClutchNodeCAFile:   v.GetString("clutch_node_ca_file"),
		ClutchNodeCertFile: v.GetString("clutch_node_cert_file"),
		ClutchNodeKeyFile:  v.GetString("clutch_node_key_file"),
		JWTSecret:          v.GetString("jwt_secret"),
		JWTExpirationHours: v.GetInt("jwt_expiration_hours"),
		RequestTimeout:     v.GetDuration("request_timeout"),
		ReconnectBackoff:   v.GetDuration("reconnect_backoff"),
		File:               path,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.ClutchNodeWSSURL == "" {
		errs = append(errs, errors.New("clutch_node_wss_url is required"))
	}
	if (c.ClutchNodeCertFile == "") != (c.ClutchNodeKeyFile == "") {
		errs = append(errs, errors.New("clutch_node_cert_file and clutch_node_key_file must be set together"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if c.JWTExpirationHours <= 0 {
		errs = append(errs, fmt.Errorf("jwt_expiration_hours must be positive, got %d", c.JWTExpirationHours))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.ReconnectBackoff <= 0 {
		errs = append(errs, fmt.Errorf("reconnect_backoff must be positive, got %s", c.ReconnectBackoff))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
