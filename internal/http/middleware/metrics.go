// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation. Metrics() records HTTP
// traffic labelled by method, registered route and status; the route label
// keeps cardinality bounded. The marketplace counters below are incremented
// by handlers after each write.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// Request sizes matter here: listing writes carry up to five images.
	httpReqSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "Size of HTTP request bodies in bytes.",
			Buckets: prometheus.ExponentialBuckets(512, 4, 9), // 512B..32MiB
		},
		[]string{"method", "path"},
	)

	listingWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_listing_writes_total",
			Help: "Listing create/update/delete attempts by outcome.",
		},
		[]string{"op", "outcome"},
	)

	imagesStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "market_listing_images_stored_total",
			Help: "Listing images written to storage.",
		},
	)

	conversationMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_conversation_messages_total",
			Help: "Messages posted, split by first contact or reply.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpReqSize,
		listingWrites, imagesStored, conversationMessages)
}

// Metrics instruments every request.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if n := c.Request.ContentLength; n > 0 {
			httpReqSize.WithLabelValues(method, path).Observe(float64(n))
		}
	}
}

// ObserveListingWrite counts one listing write. op is create|update|delete,
// outcome is ok|invalid|forbidden|not_found|error.
func ObserveListingWrite(op, outcome string) {
	listingWrites.WithLabelValues(op, outcome).Inc()
}

// ObserveImagesStored adds n stored images.
func ObserveImagesStored(n int) {
	if n > 0 {
		imagesStored.Add(float64(n))
	}
}

// ObserveMessage counts a posted message; first marks the opening message of
// a conversation.
func ObserveMessage(first bool) {
	kind := "reply"
	if first {
		kind = "first"
	}
	conversationMessages.WithLabelValues(kind).Inc()
}
