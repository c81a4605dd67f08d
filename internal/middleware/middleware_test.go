package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.Any("/api/chat", func(c *gin.Context) {
		id, _ := c.Get(ContextRequestIDKey)
		c.String(http.StatusOK, "%v", id)
	})
	return r
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name      string
		allowlist []string
		origin    string
		want      string
	}{
		{name: "allow all", origin: "https://x.org", want: "*"},
		{name: "listed origin", allowlist: []string{"https://app.org"}, origin: "https://app.org", want: "https://app.org"},
		{name: "unlisted origin", allowlist: []string{"https://app.org"}, origin: "https://evil.org", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(CORS(tt.allowlist))
			req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code)
			require.Equal(t, tt.want, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	r := newEngine(CORS(nil))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/chat", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestID())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	req.Header.Set("X-Request-Id", "abc")
	r.ServeHTTP(rec, req)
	require.Equal(t, "abc", rec.Body.String())
	require.Equal(t, "abc", rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	require.Len(t, rec.Body.String(), 36)
	require.Equal(t, rec.Body.String(), rec.Header().Get("X-Request-Id"))
}
