package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = `{"message":"最近の血圧は？"}`

func compress(t *testing.T, encoding string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch encoding {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "br":
		w = brotli.NewWriter(&buf)
	case "zstd":
		enc, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		w = enc
	default:
		return []byte(payload)
	}
	_, err := w.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func echoEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestDecompressionMiddleware())
	r.POST("/api/chat", func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusOK, string(body))
	})
	return r
}

func TestRequestDecompression(t *testing.T) {
	tests := []struct {
		encoding string
	}{
		{""},
		{"identity"},
		{"gzip"},
		{"br"},
		{"zstd"},
	}
	for _, tt := range tests {
		t.Run("encoding "+tt.encoding, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(compress(t, tt.encoding)))
			if tt.encoding != "" {
				req.Header.Set("Content-Encoding", tt.encoding)
			}
			w := httptest.NewRecorder()
			echoEngine().ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, payload, w.Body.String())
		})
	}
}

func TestRequestDecompression_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		body     string
		want     int
	}{
		{"unknown encoding", "compress", payload, http.StatusUnsupportedMediaType},
		{"corrupt gzip", "gzip", "not gzip", http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(tt.body))
			req.Header.Set("Content-Encoding", tt.encoding)
			w := httptest.NewRecorder()
			echoEngine().ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
