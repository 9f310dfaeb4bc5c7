package cache

import "strings"

// Kind identifies the entity family a cache key belongs to.
type Kind string

const (
	KindMemorialSlug Kind = "memorial-slug"
	KindMemorialID   Kind = "memorial-id"
	KindPublicList   Kind = "memorial-list"
	KindTagCloud     Kind = "tag-cloud"
	KindStats        Kind = "admin-stats"
	KindRateLimit    Kind = "ratelimit"
)

const keySeparator = ":"

// Key builds "<kind>:<id>". Kind names never contain the separator, so keys for
// different kinds cannot collide even when identifiers do.
func Key(kind Kind, id string) string {
	return string(kind) + keySeparator + id
}

// MemorialSlugKey is the key under which a public memorial snapshot is cached.
func MemorialSlugKey(slug string) string {
	return Key(KindMemorialSlug, strings.TrimSpace(slug))
}
