// Package tree implements the immutable tree values the replication engine
// diffs, patches, and hashes: records, mappings, sets, sequences, and
// leaves, plus path-indexed transform and a staged-mutation evolver.
package tree

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cppforlife/go-patch/patch"

	"github.com/wayneeseguin/convergent/internal/cerrors"
)

// Kind identifies which of the five tree value shapes a Value is.
type Kind int

const (
	KindLeaf Kind = iota
	KindSequence
	KindMapping
	KindSet
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	case KindSet:
		return "set"
	case KindRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Value is a tree value: a record, mapping, set, sequence, or leaf. All
// implementations are immutable; every mutating operation returns a new
// Value rather than modifying the receiver.
type Value interface {
	ValueKind() Kind
	Equal(other Value) bool
}

// Path is an ordered sequence of field names / mapping keys identifying a
// subtree. An empty Path identifies the root.
type Path []string

// PathOf is a convenience constructor for a Path literal.
func PathOf(segments ...string) Path {
	return Path(segments)
}

// String renders the path using go-patch's pointer syntax, e.g. "/nodes/n1".
func (p Path) String() string {
	tokens := make([]patch.Token, 0, len(p)+1)
	tokens = append(tokens, patch.RootToken{})
	for _, seg := range p {
		tokens = append(tokens, patch.KeyToken{Key: seg})
	}
	return patch.NewPointer(tokens).String()
}

// Head returns the first segment and the remaining path.
func (p Path) Head() (string, Path) {
	if len(p) == 0 {
		return "", nil
	}
	return p[0], p[1:]
}

// Append returns a new Path with seg added at the end. The receiver's
// backing array is never mutated, so callers may safely build several
// sibling paths from the same prefix.
func (p Path) Append(seg string) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = seg
	return out
}

// Parent returns every segment but the last, and the last segment itself.
// Calling Parent on an empty path returns (nil, "").
func (p Path) Parent() (Path, string) {
	if len(p) == 0 {
		return nil, ""
	}
	return p[:len(p)-1], p[len(p)-1]
}

// Leaf wraps a primitive value (string, number, bool, nil, or any other
// value without further tree structure).
type Leaf struct {
	Raw interface{}
}

func (Leaf) ValueKind() Kind { return KindLeaf }

func (l Leaf) Equal(other Value) bool {
	o, ok := other.(Leaf)
	return ok && reflect.DeepEqual(l.Raw, o.Raw)
}

// Sequence is an ordered list of tree values. Sequences are diffed and
// patched wholesale (see pkg/diff); there is no elementwise sequence patch
// operation in this algebra.
type Sequence struct {
	Items []Value
}

func NewSequence(items ...Value) Sequence {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Sequence{Items: cp}
}

func (Sequence) ValueKind() Kind { return KindSequence }

func (s Sequence) Equal(other Value) bool {
	o, ok := other.(Sequence)
	if !ok || len(s.Items) != len(o.Items) {
		return false
	}
	for i := range s.Items {
		if !s.Items[i].Equal(o.Items[i]) {
			return false
		}
	}
	return true
}

// Mapping is a key -> Value associative container.
type Mapping struct {
	entries map[string]Value
}

// NewMapping builds a Mapping from entries, copying the map so the caller's
// map remains safely mutable afterward.
func NewMapping(entries map[string]Value) Mapping {
	cp := make(map[string]Value, len(entries))
	for k, v := range entries {
		cp[k] = v
	}
	return Mapping{entries: cp}
}

func (Mapping) ValueKind() Kind { return KindMapping }

// Keys returns the mapping's keys in sorted order, so iteration and
// serialization are deterministic.
func (m Mapping) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value at key, and whether it was present.
func (m Mapping) Get(key string) (Value, bool) {
	v, ok := m.entries[key]
	return v, ok
}

// With returns a new Mapping with key set to v.
func (m Mapping) With(key string, v Value) Mapping {
	cp := make(map[string]Value, len(m.entries)+1)
	for k, existing := range m.entries {
		cp[k] = existing
	}
	cp[key] = v
	return Mapping{entries: cp}
}

// Without returns a new Mapping with key removed.
func (m Mapping) Without(key string) Mapping {
	cp := make(map[string]Value, len(m.entries))
	for k, existing := range m.entries {
		if k == key {
			continue
		}
		cp[k] = existing
	}
	return Mapping{entries: cp}
}

func (m Mapping) Len() int { return len(m.entries) }

func (m Mapping) Equal(other Value) bool {
	o, ok := other.(Mapping)
	if !ok || len(m.entries) != len(o.entries) {
		return false
	}
	for k, v := range m.entries {
		ov, ok := o.entries[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Set is an unordered collection of distinct tree values, compared and
// keyed by their canonical textual form.
type Set struct {
	items map[string]Value
}

func NewSet(items ...Value) Set {
	m := make(map[string]Value, len(items))
	for _, it := range items {
		m[canonicalKey(it)] = it
	}
	return Set{items: m}
}

func (Set) ValueKind() Kind { return KindSet }

// Items returns the set's members, ordered by canonical key for
// determinism.
func (s Set) Items() []Value {
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Value, len(keys))
	for i, k := range keys {
		out[i] = s.items[k]
	}
	return out
}

// Contains reports whether item (by canonical form) is a member.
func (s Set) Contains(item Value) bool {
	_, ok := s.items[canonicalKey(item)]
	return ok
}

// With returns a new Set with item added.
func (s Set) With(item Value) Set {
	cp := make(map[string]Value, len(s.items)+1)
	for k, v := range s.items {
		cp[k] = v
	}
	cp[canonicalKey(item)] = item
	return Set{items: cp}
}

// Without returns a new Set with item removed.
func (s Set) Without(item Value) Set {
	cp := make(map[string]Value, len(s.items))
	k := canonicalKey(item)
	for ek, v := range s.items {
		if ek == k {
			continue
		}
		cp[ek] = v
	}
	return Set{items: cp}
}

func (s Set) Len() int { return len(s.items) }

func (s Set) Equal(other Value) bool {
	o, ok := other.(Set)
	if !ok || len(s.items) != len(o.items) {
		return false
	}
	for k, v := range s.items {
		ov, ok := o.items[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// canonicalKey produces a deterministic string identity for a tree value,
// used only for Set membership and ordering. It is intentionally
// self-contained (no dependency on pkg/wire's YAML codec) to avoid an
// import cycle, since pkg/wire encodes tree.Value and must not be imported
// back into tree.
func canonicalKey(v Value) string {
	switch t := v.(type) {
	case Leaf:
		return fmt.Sprintf("leaf:%#v", t.Raw)
	case Sequence:
		parts := make([]string, len(t.Items))
		for i, item := range t.Items {
			parts[i] = canonicalKey(item)
		}
		return "seq:[" + strings.Join(parts, ",") + "]"
	case Mapping:
		keys := t.Keys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			v, _ := t.Get(k)
			parts[i] = k + "=" + canonicalKey(v)
		}
		return "map:{" + strings.Join(parts, ",") + "}"
	case Set:
		items := t.Items()
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = canonicalKey(item)
		}
		return "set:{" + strings.Join(parts, ",") + "}"
	case Record:
		parts := make([]string, 0, len(t.fieldOrder))
		for _, name := range t.fieldOrder {
			parts = append(parts, name+"="+canonicalKey(t.Fields[name]))
		}
		return "rec:" + t.Type + "{" + strings.Join(parts, ",") + "}"
	default:
		return fmt.Sprintf("unknown:%v", v)
	}
}

// Invariant is a check run over a Record's complete field set at evolver
// commit time. It may reference any of the record's fields.
type Invariant func(Record) error

// Record is an ordered collection of named fields with invariants that may
// span multiple fields, checked only at evolver commit time (never after a
// single field write in isolation).
type Record struct {
	Type       string
	Fields     map[string]Value
	fieldOrder []string
	invariants []Invariant
}

// NewRecord builds a Record. fieldOrder fixes serialization/iteration
// order; invariants are run whenever the record is produced by an
// evolver's Commit.
func NewRecord(typ string, fieldOrder []string, fields map[string]Value, invariants ...Invariant) Record {
	order := make([]string, len(fieldOrder))
	copy(order, fieldOrder)
	cp := make(map[string]Value, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Record{Type: typ, Fields: cp, fieldOrder: order, invariants: invariants}
}

func (Record) ValueKind() Kind { return KindRecord }

// FieldOrder returns the record's declared field order.
func (r Record) FieldOrder() []string {
	out := make([]string, len(r.fieldOrder))
	copy(out, r.fieldOrder)
	return out
}

// WithField returns a new Record with field name set to v. Invariants are
// not checked here; use an evolver to get deferred, whole-record invariant
// checking across several field writes.
func (r Record) WithField(name string, v Value) Record {
	cp := make(map[string]Value, len(r.Fields))
	for k, existing := range r.Fields {
		cp[k] = existing
	}
	cp[name] = v
	return Record{Type: r.Type, Fields: cp, fieldOrder: r.fieldOrder, invariants: r.invariants}
}

// CheckInvariants runs every declared invariant against r, returning a
// cerrors.MultiError if any fail.
func (r Record) CheckInvariants() error {
	var multi cerrors.MultiError
	for _, inv := range r.invariants {
		if err := inv(r); err != nil {
			multi.Append(err)
		}
	}
	if multi.Count() == 0 {
		return nil
	}
	return multi
}

func (r Record) Equal(other Value) bool {
	o, ok := other.(Record)
	if !ok || r.Type != o.Type || len(r.Fields) != len(o.Fields) {
		return false
	}
	for k, v := range r.Fields {
		ov, ok := o.Fields[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
