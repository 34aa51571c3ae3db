package api

import (
	"fmt"
	"strings"
)

// percentEncode escapes value for inclusion in a query string using
// the exact unreserved set (`[A-Za-z0-9\-_.~]` pass through, else
// uppercase `%HH`) original_source's urlEncode uses. net/url's
// QueryEscape isn't a match: it encodes spaces as `+`, not `%20`.
func percentEncode(value string) string {
	var b strings.Builder

	for i := 0; i < len(value); i++ {
		c := value[i]

		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}

	return b.String()
}

// queryParam is one key=value pair of a query string built by
// buildQuery, kept as an ordered pair rather than a map so the
// resulting URL has a stable, predictable parameter order.
type queryParam struct {
	key   string
	value string
}

// buildQuery percent-encodes and joins params into a query string,
// standing in for url.Values.Encode() everywhere the server expects
// urlEncode's escaping rather than net/url's form-encoding (which
// turns a space into `+` instead of `%20`).
func buildQuery(params ...queryParam) string {
	pairs := make([]string, len(params))
	for i, p := range params {
		pairs[i] = percentEncode(p.key) + "=" + percentEncode(p.value)
	}

	return strings.Join(pairs, "&")
}
