// Package siteid provides type-safe identity types for the two key forms
// used throughout the sync engine: RelativePath (the canonical on-disk key)
// and SiteName (the server's key, which is RelativePath with ".html"
// stripped). Both are normalized to Unicode NFC on construction so a path
// observed in two different decomposition forms — e.g. after a copy between
// HFS+/APFS and a Linux filesystem — collides into the same value.
package siteid

import (
	"encoding"
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// htmlSuffix is the fixed extension every RelativePath carries.
const htmlSuffix = ".html"

// RelativePath is a POSIX-style forward-slash path under SyncRoot, always
// including the .html suffix. It is the canonical key throughout the
// engine. The zero value represents an absent path.
type RelativePath struct {
	value string
}

// NewRelativePath normalizes a raw path: NFC-folds it, converts backslashes
// to forward slashes, and strips any leading slash so paths stay relative.
func NewRelativePath(raw string) RelativePath {
	if raw == "" {
		return RelativePath{}
	}

	cleaned := strings.ReplaceAll(raw, `\`, "/")
	cleaned = strings.TrimPrefix(cleaned, "/")
	cleaned = norm.NFC.String(cleaned)
	cleaned = path.Clean(cleaned)

	if cleaned == "." {
		return RelativePath{}
	}

	return RelativePath{value: cleaned}
}

// String returns the normalized relative path.
func (p RelativePath) String() string {
	return p.value
}

// IsZero reports whether this is the zero-value RelativePath.
func (p RelativePath) IsZero() bool {
	return p.value == ""
}

// Equal reports whether two RelativePaths refer to the same path.
func (p RelativePath) Equal(other RelativePath) bool {
	return p.value == other.value
}

// SiteName converts a RelativePath to its server-side key by stripping the
// .html suffix. Conversion is purely textual per the data model.
func (p RelativePath) SiteName() SiteName {
	return SiteName{value: strings.TrimSuffix(p.value, htmlSuffix)}
}

// MarshalText implements encoding.TextMarshaler.
func (p RelativePath) MarshalText() ([]byte, error) {
	return []byte(p.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *RelativePath) UnmarshalText(text []byte) error {
	*p = NewRelativePath(string(text))

	return nil
}

// SiteName is a RelativePath with the .html suffix stripped — the server's
// key for a site document.
type SiteName struct {
	value string
}

// NewSiteName normalizes a raw site name: a trailing .html suffix is
// stripped and the result is NFC-folded. There is no slash handling, since
// site names are leaf identifiers without directory segments implied beyond
// what the caller supplies.
func NewSiteName(raw string) SiteName {
	if raw == "" {
		return SiteName{}
	}

	return SiteName{value: norm.NFC.String(strings.TrimSuffix(raw, htmlSuffix))}
}

// String returns the normalized site name.
func (s SiteName) String() string {
	return s.value
}

// IsZero reports whether this is the zero-value SiteName.
func (s SiteName) IsZero() bool {
	return s.value == ""
}

// Equal reports whether two SiteNames are identical.
func (s SiteName) Equal(other SiteName) bool {
	return s.value == other.value
}

// RelativePath converts a SiteName back to its on-disk RelativePath by
// appending the .html suffix.
func (s SiteName) RelativePath() RelativePath {
	return RelativePath{value: s.value + htmlSuffix}
}

// MarshalText implements encoding.TextMarshaler.
func (s SiteName) MarshalText() ([]byte, error) {
	return []byte(s.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SiteName) UnmarshalText(text []byte) error {
	*s = NewSiteName(string(text))

	return nil
}

// Compile-time interface assertions.
var (
	_ encoding.TextMarshaler   = RelativePath{}
	_ encoding.TextUnmarshaler = (*RelativePath)(nil)
	_ fmt.Stringer             = RelativePath{}
	_ encoding.TextMarshaler   = SiteName{}
	_ encoding.TextUnmarshaler = (*SiteName)(nil)
	_ fmt.Stringer             = SiteName{}
)
