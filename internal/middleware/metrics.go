package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eternalmemory/eternal/pkg/metrics"
)

// unmatchedRoute labels requests no route claimed, so scanners probing random
// paths cannot mint one latency series per URL.
const unmatchedRoute = "unmatched"

// Metrics observes request latency labelled by route template, e.g.
// /api/memorials/slug/:slug rather than each memorial's slug.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metrics.APILatency.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
