package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/layermirror/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("inspect", "GET", "/health", 200, 12*time.Millisecond)
	RecordChange(OutcomeStale, 0)
	RecordChange(OutcomeApplied, time.Millisecond)
	RecordRender("layout", 3*time.Millisecond, true)
	SetDocuments(3)
	SetStatusClients(2)
	RecordHostReconnect()
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(zerolog.Nop()), RequestMetricsMiddleware("inspect"))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusTeapot, "pong") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusTeapot || rec.Body.String() != "pong" {
		t.Fatalf("unexpected response: %d %q", rec.Code, rec.Body.String())
	}
}

func TestRequestLoggerLabelsByRoute(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&buf)))
	r.GET("/documents/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		path  string
		route string
		level string
	}{
		{path: "/documents/7", route: "/documents/:id", level: "info"},
		{path: "/health", route: "/health", level: "debug"},
		{path: "/nope/123", route: UnmatchedRoute, level: "warn"},
	}
	for _, tc := range cases {
		if tc.level == "debug" && zerolog.GlobalLevel() > zerolog.DebugLevel {
			continue
		}
		buf.Reset()
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tc.path, nil))
		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("%s: decode log %q: %v", tc.path, buf.String(), err)
		}
		if line["route"] != tc.route || line["path"] != tc.path || line["level"] != tc.level {
			t.Fatalf("%s: unexpected log line: %v", tc.path, line)
		}
	}
}
