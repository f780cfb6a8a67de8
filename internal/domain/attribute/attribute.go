// Package attribute defines the closed set of sensory attributes a coffee
// rating can score. The set is fixed: every taste profile carries an entry
// for each attribute, and attribute vectors are always full-length.
package attribute

import "fmt"

// Attribute identifies one sensory dimension of a coffee rating.
type Attribute int

// The nine sensory attributes, in canonical vector order.
const (
	Acidity Attribute = iota
	Body
	Sweetness
	Aroma
	Flavor
	Aftertaste
	Balance
	Uniformity
	CleanCup
)

// Count is the number of attributes; attribute vectors have this length.
const Count = 9

// All returns the attributes in canonical order.
func All() [Count]Attribute {
	return [Count]Attribute{
		Acidity, Body, Sweetness, Aroma, Flavor,
		Aftertaste, Balance, Uniformity, CleanCup,
	}
}

var names = [Count]string{
	"acidity", "body", "sweetness", "aroma", "flavor",
	"aftertaste", "balance", "uniformity", "clean_cup",
}

// String returns the canonical name used in wire and storage formats.
func (a Attribute) String() string {
	if a < 0 || int(a) >= Count {
		return fmt.Sprintf("attribute(%d)", int(a))
	}
	return names[a]
}

// Valid reports whether a is one of the nine known attributes.
func (a Attribute) Valid() bool {
	return a >= 0 && int(a) < Count
}

// MarshalText encodes the attribute as its canonical name, so JSON
// carries names in both value and map-key positions, matching the keys
// accepted in rating sub-scores.
func (a Attribute) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAttribute, int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText decodes a canonical attribute name.
func (a *Attribute) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Parse maps a canonical name back to its Attribute.
func Parse(name string) (Attribute, error) {
	for i, n := range names {
		if n == name {
			return Attribute(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
}
