package httpcache

import (
	"fmt"
	"strings"
)

// Mode selects how the cache is consulted for a request.
type Mode int

const (
	// ModeDefault serves fresh entries, revalidates stale ones and stores
	// responses the server allows to be stored.
	ModeDefault Mode = iota
	// ModeNoStore always fetches and never stores.
	ModeNoStore
	// ModeReload always fetches and stores the response.
	ModeReload
	// ModeNoCache revalidates every cached entry with the server.
	ModeNoCache
	// ModeForceCache serves any cached entry regardless of freshness.
	ModeForceCache
	// ModeOnlyIfCached serves cached entries and never touches the network.
	ModeOnlyIfCached
	// ModeIgnoreRules serves any cached entry and stores every response,
	// ignoring the server's Cache-Control directives.
	ModeIgnoreRules
)

var modeNames = [...]string{
	"Default",
	"NoStore",
	"Reload",
	"NoCache",
	"ForceCache",
	"OnlyIfCached",
	"IgnoreRules",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// ModeNames returns the accepted mode names.
func ModeNames() []string {
	return modeNames[:]
}

// ParseMode parses a mode name. Matching ignores case, '-' and '_', so
// "ForceCache", "force-cache" and "force_cache" are equivalent.
func ParseMode(s string) (Mode, error) {
	norm := normalizeModeName(s)
	for i, name := range modeNames {
		if normalizeModeName(name) == norm {
			return Mode(i), nil
		}
	}
	return ModeDefault, fmt.Errorf("unknown http cache mode %q (valid: %s)", s, strings.Join(modeNames[:], ", "))
}

func normalizeModeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, "_", "")
}
