// Package capability answers whether a named page capability is switched on.
// The orchestrator consults it once per module, at registration time.
package capability

import "strings"

// Checker reports whether a capability flag is enabled
type Checker interface {
	Enabled(name string) bool
}

// CheckerFunc adapts a function to the Checker interface
type CheckerFunc func(name string) bool

// Enabled calls f(name)
func (f CheckerFunc) Enabled(name string) bool {
	return f(name)
}

// AllEnabled is a Checker that enables every capability
var AllEnabled Checker = CheckerFunc(func(string) bool { return true })

// Static is a Checker backed by fixed sets of flag names
type Static struct {
	enabled        map[string]bool
	defaultEnabled bool
}

// NewStatic creates a Checker from explicit enable and disable lists.
// Flags in neither list resolve to defaultEnabled; disabled wins over enabled.
func NewStatic(enabled, disabled []string, defaultEnabled bool) *Static {
	s := &Static{
		enabled:        make(map[string]bool, len(enabled)+len(disabled)),
		defaultEnabled: defaultEnabled,
	}
	for _, name := range enabled {
		if name = normalize(name); name != "" {
			s.enabled[name] = true
		}
	}
	for _, name := range disabled {
		if name = normalize(name); name != "" {
			s.enabled[name] = false
		}
	}
	return s
}

// Enabled implements Checker
func (s *Static) Enabled(name string) bool {
	if on, ok := s.enabled[normalize(name)]; ok {
		return on
	}
	return s.defaultEnabled
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
