// Package fingerprint derives stable content hashes for cards and documents.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func normalize(part string) string {
	p := strings.ToLower(part)
	p = strings.ReplaceAll(p, "\r\n", "\n")
	return strings.TrimSpace(p)
}

// NormalizeCard joins the cleaned front, back and context of a card.
// Each part is lower-cased, CRLF line endings become LF, and surrounding
// whitespace is trimmed. Parts are joined with a newline so adjacent fields
// cannot run together.
func NormalizeCard(front, back, context string) string {
	return strings.Join([]string{normalize(front), normalize(back), normalize(context)}, "\n")
}

// Card returns the hex SHA-256 of the normalized card content. It is used as
// the card ID, so cosmetic edits to a deck file keep review history.
func Card(front, back, context string) string {
	return sum(NormalizeCard(front, back, context))
}

// Text returns the hex SHA-256 of body exactly as given.
func Text(body string) string {
	return sum(body)
}

func sum(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
