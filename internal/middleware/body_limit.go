package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BodySizeLimit rejects request bodies larger than maxBytes. Read-only
// methods pass through untouched.
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		// A declared Content-Length fails fast without reading anything.
		if c.Request.ContentLength > maxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "request body too large",
			})
			c.Abort()
			return
		}

		// Chunked bodies get cut off mid-read instead.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

		c.Next()
	}
}

// SmallBodyLimit caps control-plane endpoints at 64KB. Restart keys and
// stack entries are tiny; anything larger is a client defect. Application
// creation carries uploaded file content and uses a wider BodySizeLimit.
func SmallBodyLimit() gin.HandlerFunc {
	return BodySizeLimit(64 << 10)
}
