package cache

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// Signature derives the deterministic cache key for a request. It is a pure
// function of the request type and canonicalized parameters: keys are sorted,
// values trimmed and lowercased, so semantically identical requests map to
// the same key regardless of map ordering or incidental case differences.
func Signature(requestType string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(requestType)))
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(strings.ToLower(strings.TrimSpace(k)))
		b.WriteByte('=')
		b.WriteString(strings.ToLower(strings.TrimSpace(params[k])))
	}

	h := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", h)
}
