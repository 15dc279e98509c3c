package metric_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qrave1/LiveRoom/internal/application/metric"
)

func Test_Health_reflects_session(t *testing.T) {
	tests := []struct {
		name    string
		session string
		ready   bool
		status  int
	}{
		{name: "connected", session: "connected", ready: true, status: http.StatusOK},
		{name: "idle is still healthy", session: "idle", ready: true, status: http.StatusOK},
		{name: "failed", session: "failed", ready: false, status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := metric.NewServer(func() (string, bool) { return tt.session, tt.ready })

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, tt.status, rec.Code)
			require.Contains(t, rec.Body.String(), `"session":"`+tt.session+`"`)
		})
	}
}

func Test_Metrics_endpoint(t *testing.T) {
	metric.RecordCredentialRequest(true)

	e := metric.NewServer(func() (string, bool) { return "idle", true })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "session_credential_requests_total")
}
