package cache

import (
	"net/url"
	"sort"
	"strings"
)

// KeyFor builds a stable cache key from a logical query name and its
// parameters. Parameters are sorted so equivalent queries always map to
// the same key, and escaped so values containing separators cannot
// collide with other parameter sets.
func KeyFor(name string, params map[string]string) string {
	if len(params) == 0 {
		return name
	}
	parts := make([]string, 0, len(params))
	for k, v := range params {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
	}
	sort.Strings(parts)
	return name + "?" + strings.Join(parts, "&")
}
