package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("PROXY_TIMEOUT", "30")
	t.Setenv("PROXY_UNWRAP_MODE", "Explicit")
	t.Setenv("FAL_TARGET_HOSTS", "fal.run")
	t.Setenv("POLL_INTERVAL", "5")
	defer func() {
		Port = 3000
		ProxyTimeout = 60 * time.Second
		ProxyUnwrapMode = UnwrapModeSniff
		FalTargetHosts = []string{"fal.ai", "fal.run", "fal.media"}
		PollInterval = 3 * time.Second
	}()

	require.NoError(t, Load())
	assert.Equal(t, 8080, Port)
	assert.Equal(t, 30*time.Second, ProxyTimeout)
	assert.Equal(t, UnwrapModeExplicit, ProxyUnwrapMode)
	assert.Equal(t, []string{"fal.run"}, FalTargetHosts)
	assert.Equal(t, 5*time.Second, PollInterval)
}

func TestValidateRejectsUnknownUnwrapMode(t *testing.T) {
	old := ProxyUnwrapMode
	defer func() { ProxyUnwrapMode = old }()

	ProxyUnwrapMode = "guess"
	assert.Error(t, Validate())
}

func TestValidateR2NeedsCredentials(t *testing.T) {
	old := UploadBackend
	defer func() { UploadBackend = old }()

	UploadBackend = UploadBackendR2
	assert.Error(t, Validate())
}

func TestTargetHostsWildcard(t *testing.T) {
	defaults := []string{"fal.ai", "fal.run", "fal.media"}
	defer func() { FalTargetHosts = defaults }()

	tests := []struct {
		value string
		want  []string
	}{
		{"*", nil},
		{" * ", nil},
		{"", defaults},
		{"fal.run,*", []string{"fal.run", "*"}},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			FalTargetHosts = defaults
			t.Setenv("FAL_TARGET_HOSTS", tt.value)
			require.NoError(t, Load())
			assert.Equal(t, tt.want, FalTargetHosts)
		})
	}
}
