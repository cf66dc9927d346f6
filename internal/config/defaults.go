package config

import "time"

// ApplyDefaults fills unset fields with sensible defaults, following the
// teacher's "zero value means unset" convention.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyMetricsDefaults(&cfg.Metrics)

	if cfg.Partners == nil {
		cfg.Partners = make(map[string]PartnerConfig)
	}
	if cfg.VirtualFiles == nil {
		cfg.VirtualFiles = make(map[string]VirtualFileConfig)
	}
	for id, vf := range cfg.VirtualFiles {
		if vf.Backend == "" {
			vf.Backend = "file"
			cfg.VirtualFiles[id] = vf
		}
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":3305" // conventional PeSIT-E port
	}
	if cfg.SupportedVersion == 0 {
		cfg.SupportedVersion = 2
	}
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = 30 * time.Second
	}
	// MaxConnections == 0 means unlimited; no default override.
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Addr == "" {
		cfg.Addr = ":9090"
	}
}

// GetDefaultConfig returns a Config with every default applied, used to
// seed a freshly generated config file and as the fallback when no
// config file is found.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			ServerID: "PESITD",
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
