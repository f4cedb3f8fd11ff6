// Package params implements the HyperParameters bag: a
// string-keyed map of int/real values, applied once at construction time,
// with nested components addressed via a dotted prefix ("cg.epsilon",
// "search.alpha").
package params

import (
	"sort"
	"strconv"
	"strings"

	"github.com/dismec-go/dismec/internal/core"
)

// Bag is a flat string-keyed map of raw values; PopIntOr/PopRealOr parse on
// demand, so a single Bag can serve components expecting different types
// for different keys.
type Bag struct {
	values map[string]string
}

// New creates an empty Bag.
func New() *Bag {
	return &Bag{values: make(map[string]string)}
}

// FromConfigString parses a comma-separated "key=value,key2=value2" string
// into a Bag. A key with no '=' is stored with an empty value (useful for
// bare boolean flags).
func FromConfigString(config string) *Bag {
	b := New()
	if config == "" {
		return b
	}
	for _, part := range strings.Split(config, ",") {
		subParts := strings.SplitN(part, "=", 2)
		if len(subParts) == 1 {
			b.values[subParts[0]] = ""
		} else {
			b.values[subParts[0]] = subParts[1]
		}
	}
	return b
}

// SetInt sets key to an integer value.
func (b *Bag) SetInt(key string, v int64) {
	b.values[key] = strconv.FormatInt(v, 10)
}

// SetReal sets key to a real value.
func (b *Bag) SetReal(key string, v float64) {
	b.values[key] = strconv.FormatFloat(v, 'g', -1, 64)
}

// Has reports whether key is present.
func (b *Bag) Has(key string) bool {
	_, ok := b.values[key]
	return ok
}

// PopIntOr returns the int value of key if present (removing it from the
// bag), or def otherwise. A present value that fails to parse as an integer
// is a core.InvalidArgument error (type mismatches on apply are
// errors").
func (b *Bag) PopIntOr(key string, def int64) (int64, error) {
	raw, ok := b.values[key]
	if !ok {
		return def, nil
	}
	delete(b.values, key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, core.Errorf(core.InvalidArgument, "hyperparameter %q=%q is not an int", key, raw)
	}
	return v, nil
}

// PopRealOr is PopIntOr's real-valued counterpart.
func (b *Bag) PopRealOr(key string, def float64) (float64, error) {
	raw, ok := b.values[key]
	if !ok {
		return def, nil
	}
	delete(b.values, key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, core.Errorf(core.InvalidArgument, "hyperparameter %q=%q is not a real", key, raw)
	}
	return v, nil
}

// PopStringOr is the string-valued counterpart, for keys like init-mode that
// select among named strategies rather than holding a scalar.
func (b *Bag) PopStringOr(key, def string) string {
	raw, ok := b.values[key]
	if !ok {
		return def
	}
	delete(b.values, key)
	return raw
}

// PopBoolOr is the bool-valued counterpart; a bare key with an empty value
// (as produced by FromConfigString for "flag" with no "=value") is true.
func (b *Bag) PopBoolOr(key string, def bool) (bool, error) {
	raw, ok := b.values[key]
	if !ok {
		return def, nil
	}
	delete(b.values, key)
	if raw == "" {
		return true, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, core.Errorf(core.InvalidArgument, "hyperparameter %q=%q is not a bool", key, raw)
	}
	return v, nil
}

// Sub extracts the sub-bag of keys prefixed "prefix.", with the prefix
// stripped, leaving the original keys in place (so a key can be consumed
// both by the parent validation pass and, after Sub, as the value a nested
// component sees). Use Merge after a nested component finishes applying its
// Sub bag to propagate which of its keys were consumed.
func (b *Bag) Sub(prefix string) *Bag {
	full := prefix + "."
	sub := New()
	for k, v := range b.values {
		if strings.HasPrefix(k, full) {
			sub.values[strings.TrimPrefix(k, full)] = v
		}
	}
	return sub
}

// Merge removes from b every key "prefix.<k>" whose unprefixed form <k> is
// no longer present in sub (because the nested component's Pop*Or consumed
// it). Call after a nested component has applied its Sub(prefix) bag, so
// that unknown-hyperparameter validation on b doesn't flag consumed keys.
func (b *Bag) Merge(prefix string, sub *Bag) {
	full := prefix + "."
	for k := range b.values {
		if !strings.HasPrefix(k, full) {
			continue
		}
		short := strings.TrimPrefix(k, full)
		if !sub.Has(short) {
			delete(b.values, k)
		}
	}
}

// Remaining returns the sorted list of keys nobody has Pop*Or'd, i.e. the
// set that should be reported as "unknown hyperparameter name" errors.
func (b *Bag) Remaining() []string {
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidateEmpty returns a core.InvalidArgument error naming every key left
// unconsumed, or nil if the bag is fully drained.
func (b *Bag) ValidateEmpty() error {
	remaining := b.Remaining()
	if len(remaining) == 0 {
		return nil
	}
	return core.Errorf(core.InvalidArgument, "unknown hyperparameter(s): %s", strings.Join(remaining, ", "))
}
