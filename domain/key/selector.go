package key

// Selector is anything that can yield a hierarchical prefix for a
// hierarchical invalidation call: either a full Key or a bare Prefix.
type Selector interface {
	PrefixString() string
}

// Prefix is a raw hierarchical prefix selector, for callers that want to
// target a subtree (e.g. "user/profile/v2/en-US/") without constructing a
// full Key.
type Prefix string

// PrefixString returns the prefix string itself.
func (p Prefix) PrefixString() string { return string(p) }
