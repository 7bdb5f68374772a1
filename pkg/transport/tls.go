package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

const (
	// ALPNProtocol is the application protocol negotiated over TLS.
	ALPNProtocol = "logrelay/1"

	// DefaultPort is the default relay port.
	DefaultPort = 7031
)

// ErrNoCertificate is returned when a server TLS config has no certificate.
var ErrNoCertificate = errors.New("server certificate is required")

// TLSConfig holds TLS material for relay connections.
type TLSConfig struct {
	// Certificate is the server certificate. Clients leave it empty.
	Certificate tls.Certificate

	// RootCAs verifies the server on the client side. Nil means the
	// system pool.
	RootCAs *x509.CertPool

	// ServerName overrides the name used for verification and SNI.
	ServerName string

	// InsecureSkipVerify disables server verification on clients.
	// Intended for self-signed development relays.
	InsecureSkipVerify bool
}

// NewServerTLSConfig creates the relay's TLS configuration.
func NewServerTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil || len(cfg.Certificate.Certificate) == 0 {
		return nil, ErrNoCertificate
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cfg.Certificate},
		ClientAuth:   tls.NoClientCert,
		NextProtos:   []string{ALPNProtocol},
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}, nil
}

// NewClientTLSConfig creates a client TLS configuration.
func NewClientTLSConfig(cfg *TLSConfig) *tls.Config {
	if cfg == nil {
		cfg = &TLSConfig{}
	}
	conf := &tls.Config{
		MinVersion:         tls.VersionTLS13,
		RootCAs:            cfg.RootCAs,
		ServerName:         cfg.ServerName,
		NextProtos:         []string{ALPNProtocol},
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if len(cfg.Certificate.Certificate) > 0 {
		conf.Certificates = []tls.Certificate{cfg.Certificate}
	}
	return conf
}

// VerifyTLS13 checks that a TLS connection is using TLS 1.3.
func VerifyTLS13(state tls.ConnectionState) error {
	if state.Version != tls.VersionTLS13 {
		return fmt.Errorf("TLS version %x is not TLS 1.3 (0x0304)", state.Version)
	}
	return nil
}

// VerifyALPN checks that the negotiated ALPN protocol is the relay's.
func VerifyALPN(state tls.ConnectionState) error {
	if state.NegotiatedProtocol != ALPNProtocol {
		return fmt.Errorf("ALPN protocol %q is not %q", state.NegotiatedProtocol, ALPNProtocol)
	}
	return nil
}

// VerifyConnection performs the standard checks on a completed handshake.
func VerifyConnection(state tls.ConnectionState) error {
	if err := VerifyTLS13(state); err != nil {
		return err
	}
	return VerifyALPN(state)
}

// LoadKeyPair reads a PEM certificate and key from disk.
func LoadKeyPair(certPath, keyPath string) (*TLSConfig, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &TLSConfig{Certificate: cert}, nil
}

// LoadCAPool reads PEM certificates from path into a new pool.
func LoadCAPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}
