package discovery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRelayTXT(t *testing.T) {
	tests := []struct {
		name string
		info RelayInfo
		want []string
	}{
		{"plain", RelayInfo{Port: 7031}, []string{"tls=0", "v=1"}},
		{"tls", RelayInfo{Port: 7031, TLS: true}, []string{"tls=1", "v=1"}},
		{"explicit version", RelayInfo{Version: "2"}, []string{"tls=0", "v=2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TXTRecordsToStrings(EncodeRelayTXT(&tt.info)))
		})
	}
}

func TestDecodeRelayTXT(t *testing.T) {
	info, err := DecodeRelayTXT(StringsToTXTRecords([]string{"v=1", "tls=1"}))
	require.NoError(t, err)
	assert.Equal(t, "1", info.Version)
	assert.True(t, info.TLS)

	info, err = DecodeRelayTXT(TXTRecordMap{"v": "1"})
	require.NoError(t, err)
	assert.False(t, info.TLS)

	_, err = DecodeRelayTXT(TXTRecordMap{"tls": "1"})
	assert.ErrorIs(t, err, ErrMissingRequired)

	_, err = DecodeRelayTXT(TXTRecordMap{"v": "1", "tls": "yes"})
	assert.ErrorIs(t, err, ErrInvalidTXTRecord)
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"v=1", "flag", "", "k=a=b"})
	assert.Equal(t, TXTRecordMap{"v": "1", "flag": "", "k": "a=b"}, txt)
}

func TestInstanceNames(t *testing.T) {
	assert.Error(t, ValidateInstanceName(""))
	assert.ErrorIs(t, ValidateInstanceName(strings.Repeat("x", MaxInstanceNameLen+1)), ErrInstanceNameTooLong)
	assert.NoError(t, ValidateInstanceName("logrelay-box"))

	name := DefaultInstanceName()
	assert.True(t, strings.HasPrefix(name, "logrelay-"))
	assert.NoError(t, ValidateInstanceName(name))
	assert.NotContains(t, name, ".")
}

func TestRelayServiceAddress(t *testing.T) {
	svc := &RelayService{Host: "box.local.", Port: 7031}
	assert.Equal(t, "box.local.:7031", svc.Address())

	svc.Addresses = []string{"192.168.1.4", "fe80::1"}
	assert.Equal(t, "192.168.1.4:7031", svc.Address())

	svc.Addresses = []string{"fe80::1"}
	assert.Equal(t, "[fe80::1]:7031", svc.Address())
}

func TestMergeAddresses(t *testing.T) {
	got := mergeAddresses([]string{"10.0.0.1"}, []string{"10.0.0.1", "10.0.0.2"})
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, got)
}

func TestNewMDNSBrowserDefaults(t *testing.T) {
	b := NewMDNSBrowser(BrowserConfig{})
	assert.Equal(t, DefaultBrowseTimeout, b.config.Timeout)
}
