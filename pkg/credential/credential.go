// Package credential produces random usernames/passwords meeting
// per-engine charset constraints. No example in the retrieval pack
// implements constrained random credential generation as a library; this
// is a small, security-sensitive primitive built directly on
// crypto/rand rather than pulled from an unvetted generator package.
package credential

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Charset names the allowed character classes for generated credentials.
// Some engines reject symbols in passwords (e.g. connection strings that
// embed the password unescaped in a URI).
type Charset struct {
	Lower   bool
	Upper   bool
	Digits  bool
	Symbols bool
	// ExtraSymbols overrides the default symbol set when Symbols is true.
	ExtraSymbols string
}

const (
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars  = "0123456789"
	defaultSyms = "!@#%^*_+-="
)

func (c Charset) alphabet() string {
	var a string
	if c.Lower {
		a += lowerChars
	}
	if c.Upper {
		a += upperChars
	}
	if c.Digits {
		a += digitChars
	}
	if c.Symbols {
		if c.ExtraSymbols != "" {
			a += c.ExtraSymbols
		} else {
			a += defaultSyms
		}
	}
	return a
}

// DefaultPasswordCharset is used by engines with no charset_constraints
// of their own: mixed case, digits, a conservative symbol set.
func DefaultPasswordCharset() Charset {
	return Charset{Lower: true, Upper: true, Digits: true, Symbols: true}
}

// DefaultUsernameCharset disallows symbols; usernames are frequently
// used unquoted in engine CLI invocations.
func DefaultUsernameCharset() Charset {
	return Charset{Lower: true, Digits: true}
}

// Generate returns a cryptographically random string of length n drawn
// from charset's alphabet.
func Generate(charset Charset, n int) (string, error) {
	alphabet := charset.alphabet()
	if alphabet == "" {
		return "", fmt.Errorf("credential: charset has no characters enabled")
	}
	if n <= 0 {
		return "", fmt.Errorf("credential: length must be positive, got %d", n)
	}

	out := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("credential: read random index: %w", err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}

// GeneratePassword generates a 24-character password under charset,
// defaulting to DefaultPasswordCharset when charset is the zero value.
func GeneratePassword(charset Charset) (string, error) {
	if (charset == Charset{}) {
		charset = DefaultPasswordCharset()
	}
	return Generate(charset, 24)
}

// GenerateUsername generates a username of the form "dbaas_<8 random
// lowercase+digit chars>", distinguishable from operator-chosen names.
func GenerateUsername(charset Charset) (string, error) {
	if (charset == Charset{}) {
		charset = DefaultUsernameCharset()
	}
	suffix, err := Generate(charset, 8)
	if err != nil {
		return "", err
	}
	return "dbaas_" + suffix, nil
}
