package response

import "github.com/gin-gonic/gin"

// CachePolicy names a Cache-Control class applied to responses.
type CachePolicy string

const (
	CacheMemorialDetail CachePolicy = "MEMORIAL_DETAIL"
	CacheMemorialList   CachePolicy = "MEMORIAL_LIST"
	CacheStaticAsset    CachePolicy = "STATIC_ASSET"
	CachePrivate        CachePolicy = "PRIVATE"
	CacheNone           CachePolicy = "NO_CACHE"
)

var cacheHeaders = map[CachePolicy]string{
	CacheMemorialDetail: "public, max-age=60, s-maxage=60, stale-while-revalidate=120",
	CacheMemorialList:   "public, max-age=30, s-maxage=30, stale-while-revalidate=60",
	CacheStaticAsset:    "public, max-age=31536000, immutable",
	CachePrivate:        "private, no-store",
	CacheNone:           "no-cache, no-store, must-revalidate",
}

// HeaderValue returns the Cache-Control value for the policy. Unknown policies map to NO_CACHE.
func (p CachePolicy) HeaderValue() string {
	if v, ok := cacheHeaders[p]; ok {
		return v
	}
	return cacheHeaders[CacheNone]
}

// SetCacheControl applies the policy to the response.
func SetCacheControl(c *gin.Context, policy CachePolicy) {
	c.Header("Cache-Control", policy.HeaderValue())
	if policy == CacheMemorialDetail || policy == CacheMemorialList {
		c.Header("Vary", "Accept-Encoding")
	}
}
