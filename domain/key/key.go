// Package key implements the hierarchical cache fingerprint: an immutable
// value composed of domain/facet/schemaVersion/locale/id that serializes
// deterministically to a storage-ready string, byte-identical across
// processes for semantically equal inputs.
package key

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"

	cacheerrors "cachecore/pkg/errors"
)

// Key is an immutable, hierarchical cache fingerprint.
type Key struct {
	domain        string
	facet         string
	schemaVersion string
	locale        string
	id            interface{}

	prefixSegments []string
	idString       string
	prefixString   string
	keyString      string
}

// New constructs a Key, validating and normalizing its segments. Empty or
// whitespace-only domain/facet fail with InvalidArgument; schemaVersion and
// locale are optional ("" leaves them unset) but fail with InvalidArgument
// when whitespace-only; id must be a non-empty scalar string or a composite
// map/slice that canonicalizes to a non-empty idString.
func New(domain, facet, schemaVersion, locale string, id interface{}) (Key, error) {
	if schemaVersion != "" && strings.TrimSpace(schemaVersion) == "" {
		return Key{}, cacheerrors.NewInvalidArgument("schemaVersion must not be whitespace-only")
	}
	if locale != "" && strings.TrimSpace(locale) == "" {
		return Key{}, cacheerrors.NewInvalidArgument("locale must not be whitespace-only")
	}

	domain = strings.TrimSpace(domain)
	facet = strings.TrimSpace(facet)
	schemaVersion = strings.TrimSpace(schemaVersion)
	locale = strings.TrimSpace(locale)

	if domain == "" {
		return Key{}, cacheerrors.NewInvalidArgument("domain must not be empty")
	}
	if facet == "" {
		return Key{}, cacheerrors.NewInvalidArgument("facet must not be empty")
	}

	idString, err := canonicalizeID(id)
	if err != nil {
		return Key{}, err
	}
	if idString == "" {
		return Key{}, cacheerrors.NewInvalidArgument("id must not be empty")
	}

	prefixSegments := []string{domain, facet}
	if schemaVersion != "" {
		prefixSegments = append(prefixSegments, schemaVersion)
	}
	if locale != "" {
		prefixSegments = append(prefixSegments, locale)
	}

	prefixString := rawurlencodeJoin(prefixSegments)
	keyString := prefixString + "/" + rawurlencode(idString)

	return Key{
		domain:         domain,
		facet:          facet,
		schemaVersion:  schemaVersion,
		locale:         locale,
		id:             id,
		prefixSegments: prefixSegments,
		idString:       idString,
		prefixString:   prefixString,
		keyString:      keyString,
	}, nil
}

// Domain returns the domain segment.
func (k Key) Domain() string { return k.domain }

// Facet returns the facet segment.
func (k Key) Facet() string { return k.facet }

// SchemaVersion returns the optional schema-version segment ("" if unset).
func (k Key) SchemaVersion() string { return k.schemaVersion }

// Locale returns the optional locale segment ("" if unset).
func (k Key) Locale() string { return k.locale }

// ID returns the raw id value passed at construction.
func (k Key) ID() interface{} { return k.id }

// String returns the full storage-ready key string.
func (k Key) String() string { return k.keyString }

// PrefixString returns the hierarchical prefix string (without the id).
func (k Key) PrefixString() string { return k.prefixString }

// Segments returns domain, facet, and (if set) schemaVersion, locale, id
// as an ordered slice, mirroring the wire layout.
func (k Key) Segments() []string {
	segs := make([]string, 0, len(k.prefixSegments)+1)
	segs = append(segs, k.prefixSegments...)
	segs = append(segs, k.idString)
	return segs
}

// PrefixSegments returns [domain, facet, (schemaVersion?), (locale?)].
func (k Key) PrefixSegments() []string {
	out := make([]string, len(k.prefixSegments))
	copy(out, k.prefixSegments)
	return out
}

// canonicalizeID produces the deterministic idString for a scalar or
// composite id. Scalars serialize to their string form directly; composites
// are canonicalized via sorted-key JSON, then base64url-encoded with
// padding stripped and prefixed with "j:".
func canonicalizeID(id interface{}) (string, error) {
	switch v := id.(type) {
	case nil:
		return "", cacheerrors.NewInvalidArgument("id must not be nil")
	case string:
		return strings.TrimSpace(v), nil
	case map[string]interface{}, []interface{}:
		canonical, err := json.Marshal(v)
		if err != nil {
			return "", cacheerrors.Wrap(cacheerrors.InvalidArgument, err, "failed to canonicalize composite id")
		}
		encoded := base64.RawURLEncoding.EncodeToString(canonical)
		return "j:" + encoded, nil
	default:
		return "", cacheerrors.NewInvalidArgument("id must be a string or a composite map/slice")
	}
}

// rawurlencodeJoin percent-encodes each segment and joins with "/", the
// wire format described in the key-string contract.
func rawurlencodeJoin(segments []string) string {
	encoded := make([]string, len(segments))
	for i, s := range segments {
		encoded[i] = rawurlencode(s)
	}
	return strings.Join(encoded, "/")
}

// rawurlencode percent-encodes a single path segment, leaving only RFC 3986
// unreserved characters (A-Z a-z 0-9 - _ . ~) as they are, matching the
// keyString wire contract's rawurlencode semantics.
func rawurlencode(s string) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' || '0' <= c && c <= '9' ||
			c == '-' || c == '_' || c == '.' || c == '~' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0F])
	}
	return b.String()
}

// rawurldecode reverses rawurlencode.
func rawurldecode(s string) (string, error) {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return "", cacheerrors.Wrap(cacheerrors.InvalidArgument, err, "failed to decode key segment")
	}
	return decoded, nil
}
