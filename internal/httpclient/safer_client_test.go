package httpclient

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURLScheme(t *testing.T) {
	c := New(5 * time.Second)

	_, err := c.ValidateURL("https://synth.example.com/enrich")
	assert.NoError(t, err)

	_, err = c.ValidateURL("file:///etc/passwd")
	assert.Error(t, err)

	_, err = c.ValidateURL("gopher://example.com")
	assert.Error(t, err)
}

func TestValidateURLBlocksLocalhostByDefault(t *testing.T) {
	c := New(5 * time.Second)

	for _, u := range []string{
		"http://localhost:8080/enrich",
		"http://127.0.0.1/enrich",
		"http://10.0.0.5/enrich",
		"http://192.168.1.1/enrich",
	} {
		_, err := c.ValidateURL(u)
		assert.Error(t, err, "expected %s to be blocked", u)
	}
}

func TestValidateURLAllowsLocalhostWhenDisabled(t *testing.T) {
	allow := false
	c := NewWithOptions(5*time.Second, Options{BlockPrivateIP: &allow})

	_, err := c.ValidateURL("http://localhost:8080/enrich")
	require.NoError(t, err)
}

func TestValidateURLCredentialConfusion(t *testing.T) {
	c := New(5 * time.Second)

	_, err := c.ValidateURL("http://evil.com@example.com/")
	assert.Error(t, err)
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{"10.1.2.3", "172.16.0.1", "192.168.0.1", "127.0.0.1", "169.254.1.1", "::1", "fd00::1"}
	for _, s := range private {
		assert.True(t, isPrivateIP(net.ParseIP(s)), "%s should be private", s)
	}

	public := []string{"8.8.8.8", "1.1.1.1", "93.184.216.34"}
	for _, s := range public {
		assert.False(t, isPrivateIP(net.ParseIP(s)), "%s should be public", s)
	}
}
