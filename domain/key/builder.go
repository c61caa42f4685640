package key

import (
	"strings"

	cacheerrors "cachecore/pkg/errors"
)

// Builder is a stateful constructor for Key values, and the inverse of
// Key.String via FromString.
type Builder struct {
	domain        string
	facet         string
	schemaVersion string
	locale        string
	id            interface{}
	idSet         bool
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithDomain sets the domain segment.
func (b *Builder) WithDomain(domain string) *Builder {
	b.domain = domain
	return b
}

// WithFacet sets the facet segment.
func (b *Builder) WithFacet(facet string) *Builder {
	b.facet = facet
	return b
}

// WithSchemaVersion sets the optional schema-version segment.
func (b *Builder) WithSchemaVersion(schemaVersion string) *Builder {
	b.schemaVersion = schemaVersion
	return b
}

// WithLocale sets the optional locale segment.
func (b *Builder) WithLocale(locale string) *Builder {
	b.locale = locale
	return b
}

// WithID sets the id (scalar string or composite map/slice).
func (b *Builder) WithID(id interface{}) *Builder {
	b.id = id
	b.idSet = true
	return b
}

// FromKey seeds the builder from an existing Key, so callers can derive a
// related key by overriding individual segments.
func (b *Builder) FromKey(k Key) *Builder {
	b.domain = k.domain
	b.facet = k.facet
	b.schemaVersion = k.schemaVersion
	b.locale = k.locale
	b.id = k.id
	b.idSet = true
	return b
}

// FromString parses a previously serialized keyString back into a Builder.
// Positions 0 and 1 are required (domain, facet); the last position is the
// id; middle positions, when present, map to schemaVersion and locale in
// that order. The id component is left as its decoded string form — if it
// was a composite id (prefixed "j:") it is not expanded back into a
// map/slice, since round-tripping only needs keyString equality, not a
// structural id.
func FromString(s string) (*Builder, error) {
	if s == "" {
		return nil, cacheerrors.NewInvalidArgument("key string must not be empty")
	}

	parts := strings.Split(s, "/")
	if len(parts) < 3 {
		return nil, cacheerrors.NewInvalidArgument("key string must have at least domain/facet/id")
	}

	decoded := make([]string, len(parts))
	for i, p := range parts {
		d, err := rawurldecode(p)
		if err != nil {
			return nil, err
		}
		decoded[i] = d
	}

	b := NewBuilder()
	b.WithDomain(decoded[0])
	b.WithFacet(decoded[1])

	last := len(decoded) - 1
	middle := decoded[2:last]
	switch len(middle) {
	case 0:
	case 1:
		b.WithSchemaVersion(middle[0])
	case 2:
		b.WithSchemaVersion(middle[0])
		b.WithLocale(middle[1])
	default:
		return nil, cacheerrors.NewInvalidArgument("key string has too many middle segments")
	}

	b.WithID(decoded[last])
	return b, nil
}

// Build finalizes the builder into a Key. Fails with InvalidArgument if
// domain, facet, or id were never set.
func (b *Builder) Build() (Key, error) {
	if strings.TrimSpace(b.domain) == "" {
		return Key{}, cacheerrors.NewInvalidArgument("domain must be set before Build")
	}
	if strings.TrimSpace(b.facet) == "" {
		return Key{}, cacheerrors.NewInvalidArgument("facet must be set before Build")
	}
	if !b.idSet {
		return Key{}, cacheerrors.NewInvalidArgument("id must be set before Build")
	}
	return New(b.domain, b.facet, b.schemaVersion, b.locale, b.id)
}
