// Package config loads and validates the pesitd daemon configuration,
// mirroring the teacher's pkg/config package: viper for layered
// precedence (env PESITD_* > YAML file > defaults), mapstructure
// decode hooks for bytesize.ByteSize and time.Duration, and
// validator.v10 struct-tag validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hors-sit/pesitd/internal/bytesize"
)

// Config is the root pesitd configuration.
//
// Configuration sources, highest precedence first:
//  1. Environment variables (PESITD_*)
//  2. YAML configuration file
//  3. Defaults (GetDefaultConfig)
//
// The only CLI flag, --config, selects the file. Environment variables
// override only keys that the YAML file sets; when no file is found,
// Load returns the defaults unchanged.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	Partners     map[string]PartnerConfig     `mapstructure:"partners" validate:"dive" yaml:"partners"`
	VirtualFiles map[string]VirtualFileConfig `mapstructure:"virtual_files" validate:"dive" yaml:"virtual_files"`

	S3 S3Config `mapstructure:"s3" yaml:"s3"`
}

// LoggingConfig controls internal/logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig controls the supervisor's accept loop and CONNECT identity.
type ServerConfig struct {
	// ListenAddr is the TCP address the supervisor binds (spec.md §4.7).
	ListenAddr string `mapstructure:"listen_addr" validate:"required" yaml:"listen_addr"`

	// ServerID is the PI_04_SERVEUR value this daemon answers to.
	ServerID string `mapstructure:"server_id" validate:"required" yaml:"server_id"`

	// SupportedVersion is the highest PI_06_VERSION accepted on CONNECT.
	SupportedVersion uint8 `mapstructure:"supported_version" validate:"required,gte=1" yaml:"supported_version"`

	// StrictValidation rejects CONNECT/CREATE/SELECT from unknown
	// partners or files instead of implicitly accepting them.
	StrictValidation bool `mapstructure:"strict_validation" yaml:"strict_validation"`

	// MaxConnections caps concurrent sessions; 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"gte=0" yaml:"max_connections"`

	// ShutdownGrace bounds how long a graceful shutdown waits for
	// in-flight sessions before forcing connections closed.
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace" validate:"required,gt=0" yaml:"shutdown_grace"`

	// RateLimitBytesPerSec throttles each transfer's DTF stream; 0
	// disables throttling (golang.org/x/time/rate.Inf).
	RateLimitBytesPerSec bytesize.ByteSize `mapstructure:"rate_limit_bytes_per_sec" yaml:"rate_limit_bytes_per_sec"`

	TLS TLSConfig `mapstructure:"tls" yaml:"tls"`
}

// TLSConfig mirrors internal/transport.TLSConfig's field shape so it can
// be decoded straight out of YAML/env, per spec.md §6.1.
type TLSConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	CertPEMPath string `mapstructure:"cert_pem_path" yaml:"cert_pem_path,omitempty"`
	KeyPEMPath  string `mapstructure:"key_pem_path" yaml:"key_pem_path,omitempty"`

	PKCS12Path     string `mapstructure:"pkcs12_path" yaml:"pkcs12_path,omitempty"`
	PKCS12Password string `mapstructure:"pkcs12_password" yaml:"pkcs12_password,omitempty"`

	TrustPEMPath        string `mapstructure:"trust_pem_path" yaml:"trust_pem_path,omitempty"`
	TrustPKCS12Path     string `mapstructure:"trust_pkcs12_path" yaml:"trust_pkcs12_path,omitempty"`
	TrustPKCS12Password string `mapstructure:"trust_pkcs12_password" yaml:"trust_pkcs12_password,omitempty"`
}

// MetricsConfig controls the optional Prometheus HTTP exposition server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr,omitempty"`
}

// PartnerConfig is one configured CONNECT counterparty (spec.md §4.8).
// The map key in Config.Partners is the partner's PI_03_DEMANDEUR id.
type PartnerConfig struct {
	Disabled     bool     `mapstructure:"disabled" yaml:"disabled"`
	PasswordHash string   `mapstructure:"password_hash" yaml:"password_hash,omitempty"`
	Access       string   `mapstructure:"access" validate:"omitempty,oneof=read write both" yaml:"access,omitempty"`
	AllowedFiles []string `mapstructure:"allowed_files" yaml:"allowed_files,omitempty"`
}

// VirtualFileConfig is one configured transferable virtual file
// (spec.md §4.8). The map key in Config.VirtualFiles is the
// PI_12_FILE_NAME id. Backend selects which streamio adapter resolves
// it: "file" (internal/streamio/fileio, Path) or "s3"
// (internal/streamio/s3io, Bucket/Key, client settings from Config.S3).
type VirtualFileConfig struct {
	Disabled bool   `mapstructure:"disabled" yaml:"disabled"`
	Access   string `mapstructure:"access" validate:"omitempty,oneof=read write both" yaml:"access,omitempty"`
	Backend  string `mapstructure:"backend" validate:"omitempty,oneof=file s3" yaml:"backend,omitempty"`

	// Path is the local filesystem path when Backend is "file".
	Path string `mapstructure:"path" yaml:"path,omitempty"`

	// Bucket/Key locate the object when Backend is "s3".
	Bucket string `mapstructure:"bucket" yaml:"bucket,omitempty"`
	Key    string `mapstructure:"key" yaml:"key,omitempty"`
}

// S3Config holds the shared client settings for every Backend: "s3"
// virtual file, mirroring aws-sdk-go-v2/config's LoadDefaultConfig
// override fields.
type S3Config struct {
	Region          string `mapstructure:"region" yaml:"region,omitempty"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
}

// Load reads configuration from configPath (or the default search path
// if empty), applies defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration, returning a user-facing error with setup
// instructions when no config file is found at an explicit path.
func MustLoad(configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
	}
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: failed to load: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML with owner-only permissions,
// since Partner.PasswordHash may carry credential material.
func SaveConfig(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write file: %w", err)
	}
	return nil
}

// Validate runs validator.v10 struct-tag checks over cfg.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("PESITD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(configDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pesitd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "pesitd")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the
// default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(DefaultConfigPath())
	return err == nil
}
