package tlsutil

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTLSConfig(t *testing.T) {
	cfg := DefaultTLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	require.NotEmpty(t, cfg.CipherSuites)

	aead := map[uint16]bool{
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384:       true,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384:         true,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256:       true,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:         true,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256: true,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256:   true,
	}
	for _, cs := range cfg.CipherSuites {
		assert.True(t, aead[cs], "non-AEAD cipher suite %s", tls.CipherSuiteName(cs))
	}
}

func TestNewTransport(t *testing.T) {
	tr := NewTransport(0)
	require.NotNil(t, tr.TLSClientConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), tr.TLSClientConfig.MinVersion)
	assert.True(t, tr.ForceAttemptHTTP2)
	assert.Equal(t, DefaultMaxIdleConnsPerHost, tr.MaxIdleConnsPerHost)

	tr = NewTransport(4)
	assert.Equal(t, 4, tr.MaxIdleConnsPerHost)
	assert.Equal(t, 16, tr.MaxIdleConns)
}

func TestNewHTTPClient(t *testing.T) {
	client := NewHTTPClient(15 * time.Second)
	assert.Equal(t, 15*time.Second, client.Timeout)
	assert.NotNil(t, client.Transport)
}
