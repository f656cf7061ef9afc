package security

import (
	"encoding/json"
	"exam_portal_backend/internal/util"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestLimiter_BurstThenReject(t *testing.T) {
	l := NewLimiter(2, time.Hour)
	defer l.Stop()

	if !l.Allow("1.1.1.1") || !l.Allow("1.1.1.1") {
		t.Fatal("first two requests should pass")
	}
	if l.Allow("1.1.1.1") {
		t.Fatal("third request should be limited")
	}
	if !l.Allow("2.2.2.2") {
		t.Fatal("other IPs have their own bucket")
	}

	l.Update(10, time.Hour)
	if !l.Allow("1.1.1.1") {
		t.Fatal("raised burst should apply to existing visitors")
	}
}

func TestCORS_OnlyWhitelistedOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"http://ok.example"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://ok.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://ok.example" {
		t.Errorf("allowed origin header = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow origin %q", got)
	}
}

func TestLimiterMiddleware_RejectsWithFailureBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewLimiter(1, time.Hour)
	defer l.Stop()

	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/x", func(c *gin.Context) { util.SuccessMessage(c, "ok") })

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/x", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d", first.Code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("limited request status = %d, want 200", w.Code)
	}
	var body util.Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body %q", w.Body.String())
	}
	if body.Success || body.Message != util.MsgTooManyRequests {
		t.Errorf("limited body = %+v", body)
	}

	l.Update(5, time.Hour)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || !body.Success {
		t.Errorf("request after raising limit = %s", w.Body.String())
	}
}
