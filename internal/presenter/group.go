package presenter

import (
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
)

// SecretGroupSize is the maximum number of characters per secret group.
const SecretGroupSize = 4

// GroupSecret splits secret into consecutive groups of at most
// SecretGroupSize characters, left to right. A character is one UTF-8 code
// point, or a single byte where the encoding is invalid, and groups are cut
// from the original bytes, so joining them always yields secret again. An
// empty secret has no groups and yields nil.
func GroupSecret(secret string) []string {
	if secret == "" {
		return nil
	}
	chunks := lo.Chunk(characters(secret), SecretGroupSize)
	return lo.Map(chunks, func(chunk []string, _ int) string {
		return strings.Join(chunk, "")
	})
}

// characters slices s into its characters without decoding them.
func characters(s string) []string {
	out := make([]string, 0, len(s))
	for len(s) > 0 {
		_, n := utf8.DecodeRuneInString(s)
		out = append(out, s[:n])
		s = s[n:]
	}
	return out
}
