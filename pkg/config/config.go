// Package config loads relay and client settings from the environment,
// optionally layered over a YAML file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/mash-protocol/logrelay/pkg/sink"
	"github.com/mash-protocol/logrelay/pkg/transport"
)

// ErrConflictingAuth is returned when both a token hash and a JWT secret
// are configured.
var ErrConflictingAuth = errors.New("LOGSERVER_TOKEN_HASH and LOGSERVER_JWT_SECRET are mutually exclusive")

// DefaultHost is the relay host clients dial when none is configured.
const DefaultHost = "localhost"

// Server holds relay settings.
type Server struct {
	Port       int    `yaml:"port"`         // LOGSERVER_PORT, else PORT (default 7031)
	CertPath   string `yaml:"cert_path"`    // LOGSERVER_CERT_PATH
	KeyPath    string `yaml:"key_path"`     // LOGSERVER_KEY_PATH
	LogFile    string `yaml:"log_file"`     // LOGSERVER_LOG_FILE (default /var/log/logserv.log)
	TokenHash  string `yaml:"token_hash"`   // LOGSERVER_TOKEN_HASH (bcrypt)
	JWTSecret  string `yaml:"jwt_secret"`   // LOGSERVER_JWT_SECRET
	NATSURL    string `yaml:"nats_url"`     // LOGSERVER_NATS_URL (optional, empty = no mirror)
	NATSPrefix string `yaml:"nats_prefix"`  // LOGSERVER_NATS_PREFIX
	Capture    string `yaml:"capture_file"` // LOGSERVER_CAPTURE_FILE

	RateLimit      float64 `yaml:"rate_limit"`      // LOGSERVER_RATE_LIMIT (events/s, 0 = off)
	RateBurst      int     `yaml:"rate_burst"`      // LOGSERVER_RATE_BURST
	EnforceChannel bool    `yaml:"enforce_channel"` // LOGSERVER_ENFORCE_CHANNEL
	MDNS           bool    `yaml:"mdns"`            // LOGSERVER_MDNS
}

// TLSEnabled reports whether both certificate and key are configured.
func (s *Server) TLSEnabled() bool {
	return s.CertPath != "" && s.KeyPath != ""
}

// Address returns the listen address.
func (s *Server) Address() string {
	return fmt.Sprintf(":%d", s.Port)
}

// LoadServer reads relay settings. path names an optional YAML file; the
// environment overrides whatever it sets.
func LoadServer(path string) (*Server, error) {
	c := &Server{
		Port:    transport.DefaultPort,
		LogFile: sink.DefaultPath,
	}
	if err := readFile(path, c); err != nil {
		return nil, err
	}

	if v := envOrDefault("LOGSERVER_PORT", os.Getenv("PORT")); v != "" {
		port, err := parsePort(v)
		if err != nil {
			return nil, fmt.Errorf("LOGSERVER_PORT: %w", err)
		}
		c.Port = port
	}

	c.CertPath = envOrDefault("LOGSERVER_CERT_PATH", c.CertPath)
	c.KeyPath = envOrDefault("LOGSERVER_KEY_PATH", c.KeyPath)
	c.LogFile = envOrDefault("LOGSERVER_LOG_FILE", c.LogFile)
	c.TokenHash = envOrDefault("LOGSERVER_TOKEN_HASH", c.TokenHash)
	c.JWTSecret = envOrDefault("LOGSERVER_JWT_SECRET", c.JWTSecret)
	c.NATSURL = envOrDefault("LOGSERVER_NATS_URL", c.NATSURL)
	c.NATSPrefix = envOrDefault("LOGSERVER_NATS_PREFIX", c.NATSPrefix)
	c.Capture = envOrDefault("LOGSERVER_CAPTURE_FILE", c.Capture)

	if v := os.Getenv("LOGSERVER_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("LOGSERVER_RATE_LIMIT: invalid value %q", v)
		}
		c.RateLimit = f
	}
	if v := os.Getenv("LOGSERVER_RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("LOGSERVER_RATE_BURST: invalid value %q", v)
		}
		c.RateBurst = n
	}

	var err error
	if c.EnforceChannel, err = envBool("LOGSERVER_ENFORCE_CHANNEL", c.EnforceChannel); err != nil {
		return nil, err
	}
	if c.MDNS, err = envBool("LOGSERVER_MDNS", c.MDNS); err != nil {
		return nil, err
	}

	if c.TokenHash != "" && c.JWTSecret != "" {
		return nil, ErrConflictingAuth
	}
	return c, nil
}

// Client holds settings for producers and subscribers.
type Client struct {
	Host     string `yaml:"host"`     // LOGSERVER_HOST (default localhost)
	Port     int    `yaml:"port"`     // LOGSERVER_PORT (default 7031)
	Token    string `yaml:"token"`    // LOGSERVER_TOKEN
	TLS      bool   `yaml:"tls"`      // LOGSERVER_TLS
	Insecure bool   `yaml:"insecure"` // LOGSERVER_INSECURE (skip certificate verification)
	CAPath   string `yaml:"ca_path"`  // LOGSERVER_CA_PATH
}

// Address returns "host:port".
func (c *Client) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TransportConfig builds the dialer settings. A nil TLSConfig means plain
// TCP.
func (c *Client) TransportConfig() (transport.ClientConfig, error) {
	if !c.TLS {
		return transport.ClientConfig{}, nil
	}
	tc := &transport.TLSConfig{
		ServerName:         c.Host,
		InsecureSkipVerify: c.Insecure,
	}
	if c.CAPath != "" {
		pool, err := transport.LoadCAPool(c.CAPath)
		if err != nil {
			return transport.ClientConfig{}, fmt.Errorf("LOGSERVER_CA_PATH: %w", err)
		}
		tc.RootCAs = pool
	}
	return transport.ClientConfig{TLSConfig: tc}, nil
}

// LoadClient reads client settings. path names an optional YAML file; the
// environment overrides whatever it sets.
func LoadClient(path string) (*Client, error) {
	c := &Client{
		Host: DefaultHost,
		Port: transport.DefaultPort,
	}
	if err := readFile(path, c); err != nil {
		return nil, err
	}

	c.Host = envOrDefault("LOGSERVER_HOST", c.Host)
	c.Token = envOrDefault("LOGSERVER_TOKEN", c.Token)
	c.CAPath = envOrDefault("LOGSERVER_CA_PATH", c.CAPath)

	if v := os.Getenv("LOGSERVER_PORT"); v != "" {
		port, err := parsePort(v)
		if err != nil {
			return nil, fmt.Errorf("LOGSERVER_PORT: %w", err)
		}
		c.Port = port
	}

	var err error
	if c.TLS, err = envBool("LOGSERVER_TLS", c.TLS); err != nil {
		return nil, err
	}
	if c.Insecure, err = envBool("LOGSERVER_INSECURE", c.Insecure); err != nil {
		return nil, err
	}
	return c, nil
}

func readFile(path string, into any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func parsePort(v string) (int, error) {
	port, err := strconv.Atoi(v)
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", v)
	}
	return port, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
