package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/service"
)

// UnmatchedRoute is the path label for requests that hit no registered route.
const UnmatchedRoute = "unmatched"

// Metrics returns middleware that records one request observation per call, labelled by
// route template so run ids and export tokens never become label values. Requests to
// the skip routes (typically the scrape endpoint) are not recorded.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, route := range skip {
		skipped[route] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		route := RouteLabel(c)
		if _, ok := skipped[route]; ok {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		metricsSvc.ObserveHTTPRequest(methodLabel(c.Request.Method), route, c.Writer.Status(), time.Since(start))
	}
}

// RouteLabel returns the matched route template, e.g. /api/v1/timetables/:id, or
// UnmatchedRoute when the router found nothing.
func RouteLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return UnmatchedRoute
}

func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return method
	}
	return "OTHER"
}
