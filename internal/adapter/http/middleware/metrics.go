package middleware

import (
	"github.com/gin-gonic/gin"
)

// HTTPObserver records completed requests.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int)
}

// Metrics records every request against its route template, so
// /ledgers/:id is one series regardless of the id.
func Metrics(observer HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		observer.ObserveHTTP(c.Request.Method, route, c.Writer.Status())
	}
}
