// Package sanitize normalizes names that come from users or configuration
// before they reach storage.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxIdentifierLength is the longest collection name Qdrant and chromem accept.
	MaxIdentifierLength = 64

	// HashSuffixLength is the length of "_" plus an 8-char hash.
	HashSuffixLength = 9

	// DefaultIdentifier is used when sanitization produces an empty result.
	DefaultIdentifier = "default"

	// MaxNameLength bounds stored document names in bytes.
	MaxNameLength = 255
)

// Identifier converts s to a collection-safe name matching ^[a-z0-9_]{1,64}$.
//
//	"RAGD Chunks"  -> "ragd_chunks"
//	"team/docs-v2" -> "team_docs_v2"
//	"" or "!!!"    -> "default"
//
// Names longer than MaxIdentifierLength are truncated with a hash suffix so
// distinct inputs stay distinct.
func Identifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	sanitized := b.String()
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		return DefaultIdentifier
	}
	if len(sanitized) > MaxIdentifierLength {
		sanitized = truncateWithHash(sanitized)
	}
	return sanitized
}

func truncateWithHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	suffix := "_" + hex.EncodeToString(hash[:])[:8]
	return strings.TrimRight(s[:MaxIdentifierLength-HashSuffixLength], "_") + suffix
}

// DocumentName reduces an uploaded filename to the base name a user sees in
// their document list. Directory components from either path style are
// dropped, control characters removed and the result capped at
// MaxNameLength bytes with the extension preserved. It returns "" when
// nothing usable remains.
func DocumentName(filename string) string {
	name := filename
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "." || name == ".." {
		return ""
	}
	if len(name) <= MaxNameLength {
		return name
	}

	ext := ""
	if i := strings.LastIndexByte(name, '.'); i > 0 && len(name)-i <= 16 {
		ext = name[i:]
	}
	base := name[:MaxNameLength-len(ext)]
	for !utf8.ValidString(base) {
		base = base[:len(base)-1]
	}
	return base + ext
}
