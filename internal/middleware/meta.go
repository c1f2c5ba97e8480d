package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bursary-api/pkg/middleware/requestid"
)

const responseMetaKey = "response_meta"

// WithResponseMeta attaches a per-request meta map that handlers may fill before writing
// the envelope. The request id and processing time are added when absent.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		meta := map[string]interface{}{}
		if id := requestid.Value(c); id != "" {
			meta["request_id"] = id
		}
		c.Set(responseMetaKey, meta)
		c.Next()
		if _, ok := meta["processing_time_ms"]; !ok {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
}

// SetCacheHit marks whether the payload was served from the report cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, "cache_hit", hit)
}

// SetMeta stores one meta value for the current response.
func SetMeta(c *gin.Context, key string, value interface{}) {
	meta := ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
		c.Set(responseMetaKey, meta)
	}
	meta[key] = value
}

// ExtractMeta returns the meta map or nil when WithResponseMeta did not run.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	meta, _ := c.Value(responseMetaKey).(map[string]interface{})
	return meta
}
