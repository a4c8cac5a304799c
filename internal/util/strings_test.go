package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc...", Truncate("abcdef", 3))
	assert.Equal(t, "", Truncate("anything", 0))

	long := strings.Repeat("x", 500)
	got := Truncate(long, 400)
	assert.Len(t, got, 403)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestClampFloat64(t *testing.T) {
	assert.Equal(t, 0.5, ClampFloat64(0.2, 0.5, 2.5))
	assert.Equal(t, 2.5, ClampFloat64(9.0, 0.5, 2.5))
	assert.Equal(t, 1.3, ClampFloat64(1.3, 0.5, 2.5))
}
