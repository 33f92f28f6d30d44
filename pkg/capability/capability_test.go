package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatic_Enabled(t *testing.T) {
	s := NewStatic([]string{"newsletter", " Search "}, []string{"chat", "search"}, false)

	assert.True(t, s.Enabled("newsletter"))
	assert.True(t, s.Enabled("NEWSLETTER"))
	assert.False(t, s.Enabled("search"))
	assert.False(t, s.Enabled("chat"))
	assert.False(t, s.Enabled("unknown"))
}

func TestStatic_DefaultEnabled(t *testing.T) {
	s := NewStatic(nil, []string{"beta-nav"}, true)

	assert.True(t, s.Enabled("anything"))
	assert.False(t, s.Enabled("beta-nav"))
}

func TestAllEnabled(t *testing.T) {
	assert.True(t, AllEnabled.Enabled("x"))
}
