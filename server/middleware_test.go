package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func newEngine(t *testing.T, mw ...gin.HandlerFunc) *gin.Engine {
	t.Helper()
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
	return r
}

func TestRequestID(t *testing.T) {
	r := newEngine(t, RequestID())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	generated := w.Header().Get(HeaderRequestID)
	assert.Len(t, generated, 27)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "upstream-id")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "upstream-id", w.Header().Get(HeaderRequestID))
	assert.Equal(t, "upstream-id", w.Body.String())
}

func TestRecovery(t *testing.T) {
	logger := zaptest.NewLogger(t)
	r := newEngine(t, RequestID(), Logger(logger), Recovery(logger))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, internalErrorMessage, w.Body.String())
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantCode   int
	}{
		{
			name:       "通配符放行任意来源",
			allowed:    []string{"*"},
			origin:     "https://app.example",
			method:     http.MethodGet,
			wantOrigin: "https://app.example",
			wantCode:   http.StatusOK,
		},
		{
			name:       "精确匹配",
			allowed:    []string{"https://app.example/"},
			origin:     "https://app.example",
			method:     http.MethodGet,
			wantOrigin: "https://app.example",
			wantCode:   http.StatusOK,
		},
		{
			name:     "不在列表中",
			allowed:  []string{"https://app.example"},
			origin:   "https://evil.example",
			method:   http.MethodGet,
			wantCode: http.StatusOK,
		},
		{
			name:       "预检请求",
			allowed:    []string{"*"},
			origin:     "https://app.example",
			method:     http.MethodOptions,
			wantOrigin: "https://app.example",
			wantCode:   http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(t, CORS(tt.allowed))
			req := httptest.NewRequest(tt.method, "/ping", nil)
			req.Header.Set("Origin", tt.origin)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	r := newEngine(t, RateLimit(0.001, 2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	unlimited := newEngine(t, RateLimit(0, 0))
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		unlimited.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
