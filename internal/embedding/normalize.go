// File path: internal/embedding/normalize.go
package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	markupPattern     = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// NormalizeText canonicalises block text before hashing and embedding:
// markup is stripped, whitespace collapsed, the result lowercased and
// trailing punctuation removed. Two blocks that normalise identically share
// one cache entry and one provider call.
func NormalizeText(text string) string {
	text = markupPattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = strings.ToLower(strings.TrimSpace(text))
	return strings.TrimRight(text, ".,;:!? ")
}

// TextHash returns the cache key for a block: the hex SHA-256 of the
// normalised text.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(sum[:])
}
