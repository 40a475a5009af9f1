package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountersAndPathFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/listings/:id", func(c *gin.Context) { c.String(http.StatusOK, "hello") })
	r.POST("/listings", func(c *gin.Context) { c.Status(http.StatusCreated) })

	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/listings/:id", "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404"))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/listings/3", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/listings", strings.NewReader("title=x")))

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/listings/:id", "200")); got != baseOK+1 {
		t.Fatalf("route counter = %v; want %v", got, baseOK+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404")); got != base404+1 {
		t.Fatalf("fallback counter = %v; want %v", got, base404+1)
	}
	if testutil.ToFloat64(httpInflight) != 0 {
		t.Fatalf("inflight gauge should settle at 0")
	}
	if testutil.CollectAndCount(httpReqSize) == 0 {
		t.Fatalf("request size histogram not observed")
	}
}

func TestDomainCounters(t *testing.T) {
	baseWrite := testutil.ToFloat64(listingWrites.WithLabelValues("create", "ok"))
	baseImages := testutil.ToFloat64(imagesStored)
	baseFirst := testutil.ToFloat64(conversationMessages.WithLabelValues("first"))
	baseReply := testutil.ToFloat64(conversationMessages.WithLabelValues("reply"))

	ObserveListingWrite("create", "ok")
	ObserveImagesStored(3)
	ObserveImagesStored(0)
	ObserveMessage(true)
	ObserveMessage(false)
	ObserveMessage(false)

	if got := testutil.ToFloat64(listingWrites.WithLabelValues("create", "ok")); got != baseWrite+1 {
		t.Fatalf("listing writes = %v", got)
	}
	if got := testutil.ToFloat64(imagesStored); got != baseImages+3 {
		t.Fatalf("images stored = %v", got)
	}
	if got := testutil.ToFloat64(conversationMessages.WithLabelValues("first")); got != baseFirst+1 {
		t.Fatalf("first messages = %v", got)
	}
	if got := testutil.ToFloat64(conversationMessages.WithLabelValues("reply")); got != baseReply+2 {
		t.Fatalf("replies = %v", got)
	}
}
