// Package diff computes and applies patches between tree.Value snapshots:
// the minimal sequence of patch operations that turns one tree into
// another, and the machinery to apply or compose such sequences.
package diff

import "github.com/wayneeseguin/convergent/pkg/tree"

// OpKind identifies which of the three patch operations an Op performs.
type OpKind int

const (
	// OpSet replaces a record field, a mapping key, or (with an empty
	// path) the entire tree.
	OpSet OpKind = iota
	// OpAdd inserts an item into the set found at Path.
	OpAdd
	// OpRemove removes a mapping key (Key) or a set item (Value) found
	// at Path.
	OpRemove
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "SET"
	case OpAdd:
		return "ADD"
	case OpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// Op is a single patch operation.
type Op struct {
	Kind OpKind
	Path tree.Path

	// Value carries SET's replacement value, ADD's item, or REMOVE's set
	// item (when Key is empty).
	Value tree.Value

	// Key carries REMOVE's mapping key. Left empty when removing a set
	// item instead (see Value).
	Key string
}

// Patch is an ordered sequence of patch operations, applied left to right.
type Patch []Op

// Empty reports whether the patch has no operations — the result of
// diffing a value against itself.
func (p Patch) Empty() bool {
	return len(p) == 0
}

// Compose concatenates patches in order: Compose(p, q).Apply(t) behaves as
// q.Apply(p.Apply(t)) since the operations commute across disjoint paths
// and are simply replayed in sequence.
func Compose(patches ...Patch) Patch {
	var out Patch
	for _, p := range patches {
		out = append(out, p...)
	}
	return out
}
