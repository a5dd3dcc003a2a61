package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/napmirror/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog/log"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordDispatch("nameChanged", "none", 2*time.Millisecond)
	RecordCall("setName", true)
	RecordHTTPRequest("GET", "/tree", 200, 3*time.Millisecond)
	SetMirrorObjects(7)

	if got := testutil.ToFloat64(mirrorObjects); got != 7 {
		t.Fatalf("unexpected mirror object gauge: %v", got)
	}
	if got := testutil.ToFloat64(rpcCalls.WithLabelValues("setName", "true")); got < 1 {
		t.Fatalf("rpc call counter not incremented: %v", got)
	}
}

func TestMiddlewareTagsRequestsAndRecordsRoute(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RequestLogger(log.Logger), RequestMetricsMiddleware())
	r.GET("/objects/:ptr", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/objects/42", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected generated request id header")
	}

	req = httptest.NewRequest(http.MethodGet, "/objects/43", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if got := rr.Header().Get(RequestIDHeader); got != "abc" {
		t.Fatalf("expected caller request id echoed, got %q", got)
	}

	counter := httpRequests.WithLabelValues(http.MethodGet, "/objects/:ptr", "404")
	if got := testutil.ToFloat64(counter); got < 2 {
		t.Fatalf("expected route-template label, counter=%v", got)
	}
}
