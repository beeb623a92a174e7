package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(origins []string, method, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(origins))
	r.GET("/api/v1/runs", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(method, "/api/v1/runs", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORSOrigins(t *testing.T) {
	tests := []struct {
		name        string
		origins     []string
		origin      string
		allow       string
		credentials string
	}{
		{name: "any origin", origin: "https://console.example", allow: "*"},
		{name: "listed origin", origins: []string{"https://console.example/"}, origin: "https://console.example", allow: "https://console.example", credentials: "true"},
		{name: "unlisted origin", origins: []string{"https://console.example"}, origin: "https://evil.example"},
		{name: "no origin header", origins: []string{"https://console.example"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(tc.origins, http.MethodGet, tc.origin)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.allow, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tc.credentials, w.Header().Get("Access-Control-Allow-Credentials"))
			assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Run-ID")
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	w := serve(nil, http.MethodOptions, "https://console.example")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
}
