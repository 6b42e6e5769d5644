// Package resource parses resource identifiers of the form
//
//	<scheme>://<location>[!<archive-member-path>[!<nested-member-path>...]]
//
// and derives the deterministic cache keys used as on-disk and lock names.
// Parsing is pure: no network or filesystem access happens here.
package resource

import (
	"encoding/hex"
	"strings"

	"github.com/minio/sha256-simd"
	"github.com/pkg/errors"
)

// ErrUnsupportedScheme is returned when an identifier carries a scheme prefix
// that matches none of the known backends.
var ErrUnsupportedScheme = errors.New("unsupported scheme")

// Scheme selects the backend driver for an identifier. The set is closed:
// adding a backend means adding a constant here and a case to every switch,
// which the compiler checks.
type Scheme uint8

const (
	SchemeLocal Scheme = 1 + iota
	SchemeHTTP
	SchemeS3
	SchemeHub
)

func (s Scheme) String() string {
	switch s {
	case SchemeLocal:
		return "local"
	case SchemeHTTP:
		return "http"
	case SchemeS3:
		return "s3"
	case SchemeHub:
		return "hub"
	}
	return "invalid"
}

// Remote reports whether resolving the scheme requires a network fetch.
func (s Scheme) Remote() bool {
	return s != SchemeLocal
}

// Identifier is a parsed resource identifier. It is immutable once parsed.
//
// Location keeps the full base string including any scheme prefix; each
// backend driver parses the details (bucket, key, revision, ...) it needs.
// Members holds the archive-member chain: Members[0] is a path inside the
// base artifact, Members[1] a path inside that member, and so on.
type Identifier struct {
	Scheme   Scheme
	Location string
	Members  []string
}

// Parse splits raw into scheme, backend location and archive-member chain.
// The first unescaped '!' separates the location from the member chain,
// subsequent '!' characters split the chain further. A literal '!' can be
// escaped as '\!'. A bare path without a scheme prefix is a local path.
func Parse(raw string) (Identifier, error) {
	if raw == "" {
		return Identifier{}, errors.New("empty resource identifier")
	}

	parts := splitUnescaped(raw, '!')
	base := parts[0]
	var members []string
	if len(parts) > 1 {
		members = parts[1:]
	}
	for _, m := range members {
		if m == "" {
			return Identifier{}, errors.Errorf("empty archive member in %q", raw)
		}
	}

	scheme, location, err := splitScheme(base)
	if err != nil {
		return Identifier{}, err
	}

	return Identifier{Scheme: scheme, Location: location, Members: members}, nil
}

func splitScheme(base string) (Scheme, string, error) {
	i := strings.Index(base, "://")
	if i < 0 {
		// No scheme prefix: an ordinary local path.
		return SchemeLocal, base, nil
	}

	prefix := strings.ToLower(base[:i])
	switch prefix {
	case "file", "osfs":
		return SchemeLocal, base[i+len("://"):], nil
	case "http", "https":
		// The driver needs the full URL.
		return SchemeHTTP, base, nil
	case "s3":
		return SchemeS3, base, nil
	case "hf", "hub":
		// Normalize the alias so both spellings share one cache key.
		return SchemeHub, "hf://" + base[i+len("://"):], nil
	}
	return 0, "", errors.Wrapf(ErrUnsupportedScheme, "%q", prefix)
}

func splitUnescaped(s string, sep byte) []string {
	var parts []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) && s[i+1] == sep {
			cur.WriteByte(sep)
			i++
			continue
		}
		if c == sep {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	parts = append(parts, cur.String())
	return parts
}

// String reassembles the identifier.
func (id Identifier) String() string {
	if len(id.Members) == 0 {
		return id.Location
	}
	return id.Location + "!" + strings.Join(id.Members, "!")
}

// Base returns the identifier without its member chain. Archive members are
// extracted from the cached base artifact, never fetched per member.
func (id Identifier) Base() Identifier {
	return Identifier{Scheme: id.Scheme, Location: id.Location}
}

// Key returns the cache key for the base artifact: the hex SHA-256 digest of
// the normalized identifier, excluding the member chain. Distinct identifiers
// never collide on disk.
func (id Identifier) Key() string {
	return DigestKey(id.Scheme.String() + "://" + id.Location)
}

// MemberKey returns the cache key for the extraction artifact of the member
// chain up to and including members[len-1], derived from the base key.
func (id Identifier) MemberKey(members []string) string {
	return DigestKey(id.Key() + "!" + strings.Join(members, "!"))
}

// DigestKey hashes s into a hex cache key.
func DigestKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
