package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const metaKey = "engagement_meta"

// responseMeta accumulates what handlers learn about a view while serving it.
type responseMeta struct {
	started  time.Time
	cacheHit *bool
	window   map[string]interface{}
}

// WithResponseMeta attaches an empty meta record to every request.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(metaKey, &responseMeta{started: time.Now()})
		c.Next()
	}
}

func metaOf(c *gin.Context) *responseMeta {
	if c == nil {
		return nil
	}
	v, ok := c.Get(metaKey)
	if !ok {
		return nil
	}
	m, _ := v.(*responseMeta)
	return m
}

// SetCacheHit notes whether the view came from the shared cache. It is a
// no-op without WithResponseMeta.
func SetCacheHit(c *gin.Context, hit bool) {
	if m := metaOf(c); m != nil {
		m.cacheHit = &hit
	}
}

// SetWindow notes the resolved window the view covers.
func SetWindow(c *gin.Context, period string, start, end time.Time) {
	if m := metaOf(c); m != nil {
		m.window = map[string]interface{}{
			"period": period,
			"start":  start.UTC().Format(time.RFC3339),
			"end":    end.UTC().Format(time.RFC3339),
		}
	}
}

// ExtractMeta renders the record for the response envelope, stamped with the
// time spent so far. It returns nil when the middleware did not run.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	m := metaOf(c)
	if m == nil {
		return nil
	}
	out := map[string]interface{}{
		"processing_time_ms": time.Since(m.started).Milliseconds(),
	}
	if m.cacheHit != nil {
		out["cache_hit"] = *m.cacheHit
	}
	if m.window != nil {
		out["window"] = m.window
	}
	return out
}
