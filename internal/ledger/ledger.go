// Package ledger remembers which products were already imported so a rerun
// of the same input does not create duplicates in the catalog.
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Ledger maps an import key to the catalog id it was stored under.
type Ledger interface {
	// Seen reports the id recorded for key, if any.
	Seen(ctx context.Context, key string) (id string, ok bool, err error)
	Mark(ctx context.Context, key, id string) error
}

// Nop never remembers anything.
type Nop struct{}

func (Nop) Seen(context.Context, string) (string, bool, error) { return "", false, nil }
func (Nop) Mark(context.Context, string, string) error          { return nil }

const maxNameLen = 96

// Key derives the ledger key for a product from its name and its normalized
// footprint. The footprint must already be canonical so that reordered input
// rings map to the same key.
func Key(name string, footprint []byte) string {
	safe := sanitize(strings.TrimSpace(name))
	if len(safe) > maxNameLen {
		safe = safe[:maxNameLen]
	}

	h := xxhash.New()
	_, _ = h.WriteString(strings.TrimSpace(name))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(footprint)
	return fmt.Sprintf("product:%s:f=%016x", safe, h.Sum64())
}

func sanitize(s string) string {
	if s == "" {
		return "-"
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
