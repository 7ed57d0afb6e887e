package room

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// sanitizeRoomIDPrefix normalises a caller-supplied prefix per spec §4.8:
// Unicode-normalise, lowercase, replace whitespace/hyphens with "_", keep
// only [a-z0-9_], collapse and trim "_".
func sanitizeRoomIDPrefix(prefix string) string {
	normalized := norm.NFKD.String(prefix)
	lower := strings.ToLower(normalized)

	var b strings.Builder
	for _, r := range lower {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '-':
			b.WriteRune('_')
		case unicode.IsSpace(r):
			b.WriteRune('_')
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			b.WriteRune(r)
		}
	}

	collapsed := collapseUnderscores(b.String())
	return strings.Trim(collapsed, "_")
}

func collapseUnderscores(s string) string {
	var b strings.Builder
	prevUnderscore := false
	for _, r := range s {
		if r == '_' {
			if prevUnderscore {
				continue
			}
			prevUnderscore = true
		} else {
			prevUnderscore = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

var randomIDEncoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// generateRoomID builds "{sanitisedPrefix}-{random}" where random is
// randomLength lowercase alphanumeric characters.
func generateRoomID(rawPrefix string, randomLength int) string {
	prefix := sanitizeRoomIDPrefix(rawPrefix)
	if prefix == "" {
		prefix = "room"
	}
	return prefix + "-" + RandomSuffix(randomLength)
}

// RandomSuffix returns length lowercase alphanumeric characters from
// crypto/rand, exported for the member package's external-member id
// generation ("ext-" + RandomSuffix, spec §4.10).
func RandomSuffix(length int) string {
	if length <= 0 {
		length = 8
	}
	// base32 yields ~1.6 chars per input byte; over-provision then trim.
	buf := make([]byte, (length*5+7)/8+1)
	_, _ = rand.Read(buf)
	encoded := randomIDEncoding.EncodeToString(buf)
	if len(encoded) > length {
		encoded = encoded[:length]
	}
	return encoded
}

// GenerateSecret returns a URL-safe opaque secret for anonymous access URLs.
func GenerateSecret() string {
	buf := make([]byte, 20)
	_, _ = rand.Read(buf)
	return randomIDEncoding.EncodeToString(buf)
}
