package hasher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashIsDeterministic(t *testing.T) {
	a := Hash([]byte("def add(a, b): return a + b"))
	b := Hash([]byte("def add(a, b): return a + b"))
	assert.Equal(t, a, b)
}

func TestHashDiffersOnContent(t *testing.T) {
	a := Hash([]byte("one"))
	b := Hash([]byte("two"))
	assert.NotEqual(t, a, b)
}

func TestStringIsLowercase64Hex(t *testing.T) {
	d := Hash([]byte("hello"))
	s := d.String()
	assert.Len(t, s, 64)
	for _, r := range s {
		assert.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f'))
	}
}

func TestShortStringPrefix(t *testing.T) {
	d := Hash([]byte("hello"))
	full := d.String()
	assert.Equal(t, full[:8], d.ShortString(8))
	assert.Equal(t, full, d.ShortString(64))
	assert.Equal(t, full, d.ShortString(100), "n beyond length returns the full string")
}

func TestParseRoundTrip(t *testing.T) {
	d := Hash([]byte("round trip me"))
	parsed, err := Parse(d.String())
	require.NoError(t, err)
	assert.Equal(t, d, parsed)
}

func TestParseRejectsWrongLength(t *testing.T) {
	_, err := Parse("abcd")
	assert.Error(t, err)
}

func TestParseRejectsNonHex(t *testing.T) {
	_, err := Parse("zz" + d64())
	assert.Error(t, err)
}

func d64() string {
	s := ""
	for i := 0; i < 62; i++ {
		s += "0"
	}
	return s
}

func TestIsZero(t *testing.T) {
	var d Digest
	assert.True(t, d.IsZero())
	assert.False(t, Hash([]byte("x")).IsZero())
}
