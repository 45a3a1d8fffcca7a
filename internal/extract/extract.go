// Package extract parses email addresses out of message headers and
// structured envelope address lists. All functions are pure; output
// addresses are normalized to lower case. Deduplication is left to the
// caller so that batch aggregation can union sets in one place.
package extract

import (
	"regexp"
	"strings"

	"github.com/emersion/go-imap/v2"
)

var (
	// addressPattern matches a bare local@domain.tld address. Tokens that
	// do not contain a full address are dropped rather than yielding
	// partial garbage.
	addressPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// anglePattern captures the addr-spec of a "Display Name <addr>" token.
	anglePattern = regexp.MustCompile(`<([^<>]+)>`)
)

// FromHeader parses a raw address header value ("a@x.com, Name <b@y.com>")
// into normalized addresses. Tokens are split on commas and semicolons; a
// token's angle-bracket capture is preferred over a bare-address match.
// Malformed tokens are silently dropped. Empty or unmatched input yields
// an empty result, not an error. Output order mirrors input order.
func FromHeader(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	tokens := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';'
	})

	var out []string
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		candidate := token
		if m := anglePattern.FindStringSubmatch(token); m != nil {
			candidate = m[1]
		}

		addr := addressPattern.FindString(candidate)
		if addr == "" {
			continue
		}

		out = append(out, strings.ToLower(addr))
	}

	return out
}

// FromAddresses extracts normalized addresses from a structured envelope
// address list. Entries without both a mailbox and a host part are
// filtered out. Output order mirrors input order; duplicates are kept.
func FromAddresses(addrs []imap.Address) []string {
	if len(addrs) == 0 {
		return nil
	}

	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Mailbox == "" || a.Host == "" {
			continue
		}
		out = append(out, strings.ToLower(a.Addr()))
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
