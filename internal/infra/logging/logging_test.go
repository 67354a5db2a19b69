package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected zerolog.Level
	}{
		{in: "", expected: zerolog.InfoLevel},
		{in: "debug", expected: zerolog.DebugLevel},
		{in: "ERROR", expected: zerolog.ErrorLevel},
		{in: "bogus", expected: zerolog.InfoLevel},
	}
	for _, tt := range tests {
		require.Equal(t, tt.expected, ParseLevel(tt.in), "level %q", tt.in)
	}
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New("warn", "json", &buf)

	logger.Info().Msg("hidden")
	require.Zero(t, buf.Len())

	logger.Warn().Msg("shown")
	require.Contains(t, buf.String(), `"message":"shown"`)
}

func TestMiddleware_LogsRouteAndStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(Middleware(New("info", "json", &buf)))
	r.GET("/application-status/:renterId", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/application-status/renter-1", nil)
	r.ServeHTTP(w, req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "/application-status/:renterId", line["route"])
	require.Equal(t, float64(http.StatusNotFound), line["status"])
	require.Equal(t, "warn", line["level"])
}
