package eventbus

import (
	"regexp"
	"strings"
	"sync"
)

// Wildcard matches any event name when used as the whole pattern.
const Wildcard = "*"

// segmentExpr replaces a quoted "*" and matches exactly one ':'-delimited segment
const segmentExpr = `[^:]+`

// matcher compiles wildcard patterns once and caches the result
type matcher struct {
	mu    sync.RWMutex
	cache map[string]*regexp.Regexp
}

func newMatcher() *matcher {
	return &matcher{
		cache: make(map[string]*regexp.Regexp),
	}
}

// Match reports whether pattern matches the full event name
func (m *matcher) Match(pattern, name string) bool {
	if pattern == Wildcard {
		return true
	}
	if !strings.Contains(pattern, Wildcard) {
		return pattern == name
	}
	return m.compiled(pattern).MatchString(name)
}

func (m *matcher) compiled(pattern string) *regexp.Regexp {
	m.mu.RLock()
	re, ok := m.cache[pattern]
	m.mu.RUnlock()
	if ok {
		return re
	}

	re = compilePattern(pattern)

	m.mu.Lock()
	m.cache[pattern] = re
	m.mu.Unlock()
	return re
}

// compilePattern quotes every regex metacharacter in pattern, then turns each
// "*" into a single-segment match anchored on both ends.
func compilePattern(pattern string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(pattern)
	expr := strings.ReplaceAll(quoted, regexp.QuoteMeta(Wildcard), segmentExpr)
	return regexp.MustCompile("^" + expr + "$")
}

var defaultMatcher = newMatcher()

// Match reports whether an event name matches a subscription pattern.
// A "*" segment matches exactly one ':'-delimited token and a bare "*"
// matches every name.
func Match(pattern, name string) bool {
	return defaultMatcher.Match(pattern, name)
}
