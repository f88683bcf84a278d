// Package match implements the regex matching primitives and the route
// selection algorithm of the request pipeline.
package match

import (
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 1024

// Cache memoizes compiled, anchored regexes keyed by their source
// string. Config-tree matchers are compiled at load time; the cache
// covers regexes arriving through free-form filter parameters. A
// concurrent duplicate compile stores the same value twice, which is
// harmless, so writes are deliberately unguarded.
type Cache struct {
	patterns *lru.TwoQueueCache[string, *regexp.Regexp]
}

// NewCache creates a pattern cache. A non-positive size falls back to
// the default.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = defaultCacheSize
	}
	patterns, err := lru.New2Q[string, *regexp.Regexp](size)
	if err != nil {
		// lru only errors on invalid size, which is ruled out above.
		panic(err)
	}
	return &Cache{patterns: patterns}
}

// Get returns the compiled full-match pattern for regex, compiling and
// caching it on first sight.
func (c *Cache) Get(regex string) (*regexp.Regexp, error) {
	if pattern, ok := c.patterns.Get(regex); ok {
		return pattern, nil
	}
	pattern, err := regexp.Compile("^(?:" + regex + ")$")
	if err != nil {
		return nil, err
	}
	c.patterns.Add(regex, pattern)
	return pattern, nil
}

// Evaluate tests input against an anchored pattern. On match it returns
// the variables extracted from captureGroups, keyed prefix.<group>;
// with no capture groups the whole match is recorded under defaultKey
// instead. A configured group missing from the regex contributes no
// variable and is not an error.
func Evaluate(pattern *regexp.Regexp, captureGroups []string, prefix, defaultKey, input string) (map[string]string, bool) {
	submatches := pattern.FindStringSubmatch(input)
	if submatches == nil {
		return nil, false
	}
	vars := make(map[string]string, len(captureGroups)+1)
	if len(captureGroups) == 0 {
		vars[defaultKey] = submatches[0]
		return vars, true
	}
	for _, group := range captureGroups {
		idx := pattern.SubexpIndex(group)
		if idx < 0 || idx >= len(submatches) {
			continue
		}
		vars[prefix+"."+group] = submatches[idx]
	}
	return vars, true
}
