package logger

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSensitiveString(t *testing.T) {
	assert.Equal(t, "", MaskSensitiveString("", 2, 2))
	assert.Equal(t, "*****", MaskSensitiveString("short", 2, 2))
	assert.Equal(t, "ab...yz", MaskSensitiveString("abcdefghijklmnopqrstuvwxyz", 2, 2))
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "0123...ef", MaskAPIKey("0123456789abcdef"))
	assert.Equal(t, "****", MaskAPIKey("abcd"))
}

func TestMaskJWT(t *testing.T) {
	assert.Equal(t, "", MaskJWT(""))
	assert.Equal(t, "*****", MaskJWT("abcde"))
	assert.Equal(t, "eyJ...xyz", MaskJWT("eyJhbGciOiJIUzI1NiJ9.payload.xyz"))
}

func TestFilterSensitiveHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("X-Api-Key", "k")
	h.Set("Accept", "application/json")

	filtered := filterSensitiveHeaders(h)
	assert.Equal(t, "[REDACTED]", filtered["Authorization"])
	assert.Equal(t, "[REDACTED]", filtered["X-Api-Key"])
	assert.Equal(t, "application/json", filtered["Accept"])
}
