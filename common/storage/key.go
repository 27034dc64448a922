package storage

import (
	"path"
	"strings"
)

// Provider tags a storage backend family. The set is closed; selection
// happens once per key instead of branching on raw strings everywhere.
type Provider string

const (
	ProviderS3    Provider = "s3"
	ProviderCDN   Provider = "cdn"
	ProviderLocal Provider = "local"
)

// Key is a parsed, backend-qualified object locator. A bare path implies
// the caller's default provider; an explicit "<provider>:" prefix or a full
// URL overrides it, which makes keys self-describing enough to survive a
// stale provider hint.
type Key struct {
	Provider Provider
	Path     string // provider-local path, or the full URL when IsURL is set
	IsURL    bool
}

// ParseKey resolves a raw key against a default provider
func ParseKey(raw string, def Provider) Key {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return Key{Provider: ProviderCDN, Path: raw, IsURL: true}
	}
	for _, p := range []Provider{ProviderS3, ProviderCDN, ProviderLocal} {
		if rest, ok := strings.CutPrefix(raw, string(p)+":"); ok {
			return Key{Provider: p, Path: rest}
		}
	}
	return Key{Provider: def, Path: raw}
}

// String renders the key back in its prefixed form
func (k Key) String() string {
	if k.IsURL {
		return k.Path
	}
	return string(k.Provider) + ":" + k.Path
}

// DerivedKey produces a derived-asset key by extension substitution,
// preserving whatever provider prefix the source key carried. For
// "s3:orders/a/art.pdf" and suffix "_thumb.jpg" it yields
// "s3:orders/a/art_thumb.jpg"; a bare source key stays bare.
func DerivedKey(raw, suffix string) string {
	prefix := ""
	rest := raw
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		// URL keys keep their scheme and host untouched
		i := strings.Index(raw[8:], "/")
		if i < 0 {
			// No path to derive from; never touch the host
			return raw
		}
		prefix, rest = raw[:8+i], raw[8+i:]
	} else {
		for _, p := range []Provider{ProviderS3, ProviderCDN, ProviderLocal} {
			if r, ok := strings.CutPrefix(raw, string(p)+":"); ok {
				prefix, rest = string(p)+":", r
				break
			}
		}
	}
	ext := path.Ext(rest)
	return prefix + strings.TrimSuffix(rest, ext) + suffix
}
