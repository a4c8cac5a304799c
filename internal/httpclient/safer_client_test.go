package httpclient

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURLBlocksPrivateTargets(t *testing.T) {
	client := New(5 * time.Second)

	cases := []string{
		"http://localhost/webhook",
		"http://127.0.0.1:8080/",
		"http://10.0.0.5/internal",
		"http://192.168.1.1/admin",
		"http://169.254.169.254/latest/meta-data/",
		"ftp://example.com/file",
		"http://user@evil.com/",
	}
	for _, raw := range cases {
		_, err := client.ValidateURL(raw)
		assert.Error(t, err, raw)
	}
}

func TestValidateURLAllowsPublicHTTPS(t *testing.T) {
	client := New(5 * time.Second)

	u, err := client.ValidateURL("https://api.telegram.org/bot123/sendMessage")
	require.NoError(t, err)
	assert.Equal(t, "api.telegram.org", u.Hostname())
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, isPrivateIP(net.ParseIP("10.1.2.3")))
	assert.True(t, isPrivateIP(net.ParseIP("::1")))
	assert.True(t, isPrivateIP(net.ParseIP("fd00::1")))
	assert.False(t, isPrivateIP(net.ParseIP("8.8.8.8")))
	assert.False(t, isPrivateIP(net.ParseIP("2600:1901::1")))
}

func TestWrapClientSkipsPrivateBlocking(t *testing.T) {
	client := WrapClient(nil)
	_, err := client.ValidateURL("http://127.0.0.1:9999/metrics")
	assert.NoError(t, err)
}
