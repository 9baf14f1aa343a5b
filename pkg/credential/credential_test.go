package credential

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePasswordLengthAndAlphabet(t *testing.T) {
	pw, err := GeneratePassword(Charset{})
	require.NoError(t, err)
	assert.Len(t, pw, 24)
}

func TestGenerateRespectsNoSymbolsConstraint(t *testing.T) {
	cs := Charset{Lower: true, Upper: true, Digits: true}
	pw, err := Generate(cs, 32)
	require.NoError(t, err)
	assert.False(t, strings.ContainsAny(pw, defaultSyms))
}

func TestGenerateEmptyCharsetFails(t *testing.T) {
	_, err := Generate(Charset{}, 10)
	assert.Error(t, err)
}

func TestGenerateUsernameHasPrefix(t *testing.T) {
	u, err := GenerateUsername(Charset{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "dbaas_"))
	assert.Len(t, u, len("dbaas_")+8)
}

func TestGenerateIsRandom(t *testing.T) {
	a, err := GeneratePassword(Charset{})
	require.NoError(t, err)
	b, err := GeneratePassword(Charset{})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
