package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"

	"software.sslmate.com/src/go-pkcs12"
)

// TLSConfig describes the certificate material for a TLS-wrapped PeSIT
// connection (spec.md §6.1: "TLS 1.3 (fallback 1.2) and optional mutual
// auth"). Exactly one of (CertPEMPath+KeyPEMPath) or (PKCS12Path+
// PKCS12Password) must be set for the identity material; TrustPEMPath or
// (TrustPKCS12Path+TrustPKCS12Password) is optional and enables mutual
// auth by pinning a CA for client certificate verification.
type TLSConfig struct {
	CertPEMPath string
	KeyPEMPath  string

	PKCS12Path     string
	PKCS12Password string

	TrustPEMPath        string
	TrustPKCS12Path     string
	TrustPKCS12Password string

	// ServerName is set on the client side for SNI/verification; empty on
	// the server side.
	ServerName string
}

// buildTLSConfig loads the identity and (optional) trust material and
// returns a *tls.Config ready for either tls.Dial or tls.Listen. TLS 1.2
// is the accepted floor; TLS 1.3 is negotiated whenever the peer supports
// it since MinVersion only sets a floor, not a target.
func buildTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	cert, err := loadKeyPair(cfg)
	if err != nil {
		return nil, fmt.Errorf("transport: load TLS identity: %w", err)
	}

	tc := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		ServerName:   cfg.ServerName,
	}

	pool, err := loadTrustPool(cfg)
	if err != nil {
		return nil, fmt.Errorf("transport: load TLS truststore: %w", err)
	}
	if pool != nil {
		tc.ClientCAs = pool
		tc.RootCAs = pool
		tc.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return tc, nil
}

func loadKeyPair(cfg TLSConfig) (tls.Certificate, error) {
	switch {
	case cfg.PKCS12Path != "":
		raw, err := os.ReadFile(cfg.PKCS12Path)
		if err != nil {
			return tls.Certificate{}, err
		}
		key, leaf, caCerts, err := pkcs12.DecodeChain(raw, cfg.PKCS12Password)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("decode PKCS#12 keystore: %w", err)
		}
		chain := [][]byte{leaf.Raw}
		for _, c := range caCerts {
			chain = append(chain, c.Raw)
		}
		return tls.Certificate{Certificate: chain, PrivateKey: key, Leaf: leaf}, nil
	case cfg.CertPEMPath != "":
		return tls.LoadX509KeyPair(cfg.CertPEMPath, cfg.KeyPEMPath)
	default:
		return tls.Certificate{}, fmt.Errorf("no certificate material configured")
	}
}

func loadTrustPool(cfg TLSConfig) (*x509.CertPool, error) {
	switch {
	case cfg.TrustPKCS12Path != "":
		raw, err := os.ReadFile(cfg.TrustPKCS12Path)
		if err != nil {
			return nil, err
		}
		certs, err := pkcs12.DecodeTrustStore(raw, cfg.TrustPKCS12Password)
		if err != nil {
			return nil, fmt.Errorf("decode PKCS#12 truststore: %w", err)
		}
		pool := x509.NewCertPool()
		for _, c := range certs {
			pool.AddCert(c)
		}
		return pool, nil
	case cfg.TrustPEMPath != "":
		raw, err := os.ReadFile(cfg.TrustPEMPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(raw) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.TrustPEMPath)
		}
		return pool, nil
	default:
		return nil, nil
	}
}

// DialTLS dials addr and performs a TLS handshake per cfg, returning a
// ready-to-use Channel. The handshake respects ctx's deadline/cancellation.
func DialTLS(ctx context.Context, addr string, cfg TLSConfig) (Channel, error) {
	tc, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	dialer := &tls.Dialer{Config: tc}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: TLS dial %s: %w", addr, err)
	}
	return NewTCPChannel(conn), nil
}

// NewTLSChannel upgrades an already-accepted net.Conn to TLS as a server,
// performing the handshake before returning.
func NewTLSChannel(conn net.Conn, cfg TLSConfig) (Channel, error) {
	tc, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	srv := tls.Server(conn, tc)
	if err := srv.Handshake(); err != nil {
		return nil, fmt.Errorf("transport: TLS handshake: %w", err)
	}
	return NewTCPChannel(srv), nil
}
