// Package discovery advertises and finds log relays with mDNS/DNS-SD.
//
// A relay registers one instance of _logrelay._tcp in the local. domain.
// The instance name defaults to "logrelay-<host>". TXT records:
//
//	v    protocol version (currently "1")
//	tls  "1" when the listener requires TLS, else "0"
//
// Clients that are given no host browse for the service and dial the
// first relay that answers.
package discovery
