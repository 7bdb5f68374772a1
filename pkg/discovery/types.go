package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"
)

// Service identification.
const (
	// ServiceType is the DNS-SD service type of a relay.
	ServiceType = "_logrelay._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// ProtocolVersion is advertised in the v TXT record.
	ProtocolVersion = "1"

	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyVersion = "v"
	TXTKeyTLS     = "tls"
)

// Discovery errors.
var (
	ErrMissingRequired     = errors.New("missing required TXT record")
	ErrInvalidTXTRecord    = errors.New("invalid TXT record")
	ErrInstanceNameTooLong = errors.New("instance name too long")
	ErrNotFound            = errors.New("no relay found")
)

// RelayInfo is what a relay advertises.
type RelayInfo struct {
	// InstanceName is the DNS-SD instance (default: DefaultInstanceName).
	InstanceName string

	// Port is the relay's TCP port.
	Port uint16

	// TLS reports whether the listener requires TLS.
	TLS bool

	// Version is the advertised protocol version.
	Version string
}

// RelayService is a relay found by browsing.
type RelayService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string
	TLS          bool
	Version      string
}

// Address returns a dialable "host:port", preferring the first resolved
// address over the host name.
func (s *RelayService) Address() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}

// AdvertiserConfig configures an Advertiser.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface.
	Interface string

	// TTL overrides the record TTL.
	TTL time.Duration
}

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface.
	Interface string

	// Timeout bounds FindFirst (default: 3s).
	Timeout time.Duration
}

// Advertiser publishes a relay on the local network.
type Advertiser interface {
	Advertise(info *RelayInfo) error
	Stop() error
}

// Browser finds relays on the local network.
type Browser interface {
	Browse(ctx context.Context) (<-chan *RelayService, error)
	FindFirst(ctx context.Context) (*RelayService, error)
}
