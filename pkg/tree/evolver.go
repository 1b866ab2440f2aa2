package tree

import "github.com/wayneeseguin/convergent/internal/cerrors"

// Evolver buffers a chain of staged operations on a tree node and its
// descendants, materializing a single new immutable tree at Commit. Record
// invariants that span several fields would trip if those fields were
// written one at a time to a finished immutable tree; staging every write
// and deferring invariant checks to Commit avoids that.
type Evolver struct {
	original Value
	children map[string]*Evolver

	// mapping/record field writes staged at this level
	sets    map[string]Value
	removes map[string]bool

	// set additions/removals staged at this level
	addItems    []Value
	removeItems []Value
}

// NewEvolver returns an evolver rooted at v.
func NewEvolver(v Value) *Evolver {
	return &Evolver{
		original: v,
		children: map[string]*Evolver{},
		sets:     map[string]Value{},
		removes:  map[string]bool{},
	}
}

// child returns the child evolver for segment seg, creating one rooted at
// the current subtree if it doesn't exist yet.
func (e *Evolver) child(seg string) (*Evolver, error) {
	if c, ok := e.children[seg]; ok {
		return c, nil
	}
	var base Value
	switch t := e.original.(type) {
	case Record:
		v, ok := t.Fields[seg]
		if !ok {
			return nil, cerrors.WithPath(cerrors.Invariant, seg, "path not found")
		}
		base = v
	case Mapping:
		v, ok := t.Get(seg)
		if !ok {
			return nil, cerrors.WithPath(cerrors.Invariant, seg, "path not found")
		}
		base = v
	default:
		return nil, cerrors.WithPath(cerrors.Invariant, seg, "path not found")
	}
	c := NewEvolver(base)
	e.children[seg] = c
	return c, nil
}

// Transform walks path segments, creating or reusing a child evolver per
// segment, then calls fn on the evolver at the end of the walk.
func (e *Evolver) Transform(path Path, fn func(*Evolver) error) error {
	if len(path) == 0 {
		return fn(e)
	}
	seg, rest := path.Head()
	c, err := e.child(seg)
	if err != nil {
		return err
	}
	return c.Transform(rest, fn)
}

// SetField stages a record-field or mapping-key write at this level.
func (e *Evolver) SetField(key string, v Value) {
	e.sets[key] = v
}

// RemoveKey stages a mapping-key removal at this level.
func (e *Evolver) RemoveKey(key string) {
	e.removes[key] = true
}

// AddItem stages a set addition at this level.
func (e *Evolver) AddItem(item Value) {
	e.addItems = append(e.addItems, item)
}

// RemoveItem stages a set removal at this level.
func (e *Evolver) RemoveItem(item Value) {
	e.removeItems = append(e.removeItems, item)
}

// ReplaceRoot stages a wholesale replacement of this node, the evolver
// equivalent of a SET with an empty remaining path. Rather than stashing
// the replacement and discarding whatever else gets staged on e
// afterward, it re-roots e at v immediately and drops every
// previously-staged write, so later operations in the same patch (a
// field SET under a path that no longer exists on the old shape, say)
// apply on top of the replacement instead of being silently lost.
// Mirrors the original protocol's Diff.apply(), which on an empty-path
// _Set starts a fresh _EvolverProxy(original=c.value) and keeps applying
// the remaining changes onto it.
func (e *Evolver) ReplaceRoot(v Value) {
	e.original = v
	e.children = map[string]*Evolver{}
	e.sets = map[string]Value{}
	e.removes = map[string]bool{}
	e.addItems = nil
	e.removeItems = nil
}

// Commit materializes children first (post-order), applies staged writes
// on this node, runs invariants if this node is a Record, and returns the
// resulting immutable Value. A failing invariant aborts the entire commit;
// the caller receives the error and must discard the evolver.
func (e *Evolver) Commit() (Value, error) {
	resolvedChildren := make(map[string]Value, len(e.children))
	for seg, c := range e.children {
		v, err := c.Commit()
		if err != nil {
			return nil, err
		}
		resolvedChildren[seg] = v
	}

	switch t := e.original.(type) {
	case Record:
		if len(e.removes) > 0 {
			return nil, cerrors.New(cerrors.Invariant, "record fields cannot be removed")
		}
		fields := make(map[string]Value, len(t.Fields))
		for k, v := range t.Fields {
			fields[k] = v
		}
		for seg, v := range resolvedChildren {
			fields[seg] = v
		}
		for k, v := range e.sets {
			fields[k] = v
		}
		rec := Record{Type: t.Type, Fields: fields, fieldOrder: t.fieldOrder, invariants: t.invariants}
		if err := rec.CheckInvariants(); err != nil {
			return nil, err
		}
		return rec, nil

	case Mapping:
		entries := make(map[string]Value, len(t.entries))
		for k, v := range t.entries {
			entries[k] = v
		}
		for seg, v := range resolvedChildren {
			entries[seg] = v
		}
		for k, v := range e.sets {
			entries[k] = v
		}
		for k := range e.removes {
			delete(entries, k)
		}
		return Mapping{entries: entries}, nil

	case Set:
		items := make(map[string]Value, len(t.items))
		for k, v := range t.items {
			items[k] = v
		}
		for _, it := range e.addItems {
			items[canonicalKey(it)] = it
		}
		for _, it := range e.removeItems {
			delete(items, canonicalKey(it))
		}
		return Set{items: items}, nil

	default:
		// Leaf or Sequence: nothing at this level is independently
		// mutable; a whole-node replacement already re-rooted e.original
		// via ReplaceRoot, so returning it here is enough.
		return e.original, nil
	}
}
