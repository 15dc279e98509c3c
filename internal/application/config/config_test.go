package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qrave1/LiveRoom/internal/application/config"
)

func setSession(t *testing.T) {
	t.Helper()

	t.Setenv("SESSION_USER_ID", "prof")
	t.Setenv("SESSION_ROOM_ID", "room-1")
}

func Test_New_defaults(t *testing.T) {
	setSession(t)
	t.Setenv("CREDENTIAL_URL", "https://api.example")

	cfg, err := config.New()
	require.NoError(t, err)

	require.Equal(t, config.TransportSignaling, cfg.Transport)
	require.Equal(t, "professor", cfg.Session.Role)
	require.Equal(t, 10*time.Second, cfg.Credential.Timeout)
	require.Equal(t, uint64(5), cfg.Signaling.ReconnectAttempts)
	require.Len(t, cfg.ICEServers, 1)
	require.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers[0].URLs)
}

func Test_New_turn_servers(t *testing.T) {
	setSession(t)
	t.Setenv("CREDENTIAL_URL", "https://api.example")
	t.Setenv("TURN_HOST", "turn.example:3478")
	t.Setenv("TURN_USERNAME", "user")
	t.Setenv("TURN_PASSWORD", "pass")

	cfg, err := config.New()
	require.NoError(t, err)

	require.Len(t, cfg.ICEServers, 3)
	require.Equal(t, []string{"turn:turn.example:3478?transport=udp"}, cfg.ICEServers[1].URLs)
	require.Equal(t, "user", cfg.ICEServers[2].Username)
}

func Test_New_rejects_invalid_env(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "no credential source",
			env:  map[string]string{},
		},
		{
			name: "unknown transport",
			env:  map[string]string{"CREDENTIAL_URL": "https://api.example", "TRANSPORT": "carrier-pigeon"},
		},
		{
			name: "memory transport without secret",
			env:  map[string]string{"CREDENTIAL_URL": "https://api.example", "TRANSPORT": "memory"},
		},
		{
			name: "unknown role",
			env:  map[string]string{"CREDENTIAL_DEV_SECRET": "s", "SESSION_ROLE": "janitor"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setSession(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.New()
			require.Error(t, err)
		})
	}
}

func Test_New_requires_session(t *testing.T) {
	t.Setenv("CREDENTIAL_DEV_SECRET", "s")
	t.Setenv("SESSION_USER_ID", "")
	t.Setenv("SESSION_ROOM_ID", "")

	_, err := config.New()
	require.Error(t, err)
}
