package config

import (
	"golang.org/x/time/rate"

	"github.com/hors-sit/pesitd/internal/transport"
	"github.com/hors-sit/pesitd/internal/validator"
)

// PartnerStore adapts the configured Partners map to
// validator.PartnerStore, the same conversion shape as the teacher's
// (*Config).CreateUserStore.
func (c *Config) PartnerStore() validator.PartnerStore {
	store := make(validator.MapPartnerStore, len(c.Partners))
	for id, p := range c.Partners {
		store[id] = validator.Partner{
			ID:           id,
			Disabled:     p.Disabled,
			PasswordHash: p.PasswordHash,
			Access:       accessDirection(p.Access),
			AllowedFiles: p.AllowedFiles,
		}
	}
	return store
}

// FileStore adapts the configured VirtualFiles map to validator.FileStore.
func (c *Config) FileStore() validator.FileStore {
	store := make(validator.MapFileStore, len(c.VirtualFiles))
	for id, f := range c.VirtualFiles {
		store[id] = validator.VirtualFile{
			ID:       id,
			Disabled: f.Disabled,
			Access:   accessDirection(f.Access),
		}
	}
	return store
}

// TransportTLSConfig converts ServerConfig.TLS into an
// internal/transport.TLSConfig for ListenTLS.
func (c *Config) TransportTLSConfig() transport.TLSConfig {
	t := c.Server.TLS
	return transport.TLSConfig{
		CertPEMPath:         t.CertPEMPath,
		KeyPEMPath:          t.KeyPEMPath,
		PKCS12Path:          t.PKCS12Path,
		PKCS12Password:      t.PKCS12Password,
		TrustPEMPath:        t.TrustPEMPath,
		TrustPKCS12Path:     t.TrustPKCS12Path,
		TrustPKCS12Password: t.TrustPKCS12Password,
	}
}

// RateLimiter builds the token-bucket limiter each transfer's Plan uses
// to throttle its DTF stream, per ServerConfig.RateLimitBytesPerSec. A
// zero configured rate means unthrottled.
func (c *Config) RateLimiter() *rate.Limiter {
	if c.Server.RateLimitBytesPerSec == 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	limit := rate.Limit(c.Server.RateLimitBytesPerSec.Uint64())
	burst := int(c.Server.RateLimitBytesPerSec.Uint64())
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(limit, burst)
}

func accessDirection(s string) validator.AccessDirection {
	switch s {
	case "write":
		return validator.AccessWriteOnly
	case "read":
		return validator.AccessReadOnly
	default:
		return validator.AccessBoth
	}
}
