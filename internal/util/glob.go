package util

import (
	"path"
	"strings"
)

// MatchWildcard reports whether an index name matches an index pattern in
// the engine's multi-target syntax: a comma separated list of path.Match
// wildcards, where an entry starting with '-' excludes names matched so far.
// Malformed entries match nothing.
func MatchWildcard(pattern, name string) bool {
	matched := false
	for _, p := range strings.Split(pattern, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "-") {
			if ok, _ := path.Match(p[1:], name); ok {
				matched = false
			}
			continue
		}
		if ok, _ := path.Match(p, name); ok {
			matched = true
		}
	}
	return matched
}
