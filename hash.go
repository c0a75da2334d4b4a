package pgwire

import "github.com/cespare/xxhash/v2"

// xxhashString collapses SQL text into the statement cache's map key. The
// cache is keyed by SQL text verbatim (including whitespace); hashing trades
// a vanishingly small collision risk at prepared-statement cache scale for
// not retaining the full SQL text twice per entry.
func xxhashString(s string) uint64 {
	return xxhash.Sum64String(s)
}
