package wire

import (
	"gopkg.in/yaml.v3"

	"github.com/wayneeseguin/convergent/internal/cerrors"
	"github.com/wayneeseguin/convergent/pkg/tree"
)

// typedNode is a fully round-trippable representation of a tree.Value,
// tagged with its Kind so a Set and a Sequence (which Encode/Decode above
// deliberately render as indistinguishable YAML lists, since they only
// need to hash the same when structurally equal) can be told apart again.
// Used for UPDATE_FULL/UPDATE_DIFF payloads, where the receiver must
// reconstruct an actual tree.Value rather than just read back plain data.
type typedNode struct {
	Kind    string                `yaml:"kind"`
	Raw     interface{}           `yaml:"raw,omitempty"`
	Items   []typedNode           `yaml:"items,omitempty"`
	Entries map[string]typedNode  `yaml:"entries,omitempty"`
	Type    string                `yaml:"type,omitempty"`
	Order   []string              `yaml:"order,omitempty"`
	Fields  map[string]typedNode  `yaml:"fields,omitempty"`
}

// EncodeTyped renders v as YAML that DecodeTyped can reconstruct into an
// equal tree.Value. Unlike Encode, this is not used for hashing (field
// order and the explicit kind tag make it unsuitable as a canonical
// digest input); it exists purely for transport between processes that
// both understand tree.Value.
func EncodeTyped(v tree.Value) ([]byte, error) {
	return yaml.Marshal(toTypedNode(v))
}

// DecodeTyped reverses EncodeTyped. Note that a tree.Record decoded this
// way carries no invariants: invariants are Go closures attached by the
// code that constructs a Record locally, not data that travels over the
// wire. A decoded Record is suitable for reading and for further
// patching, but an evolver Commit over it runs zero invariant checks
// until the receiving side re-attaches its own.
func DecodeTyped(data []byte) (tree.Value, error) {
	var node typedNode
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, cerrors.Wrap(cerrors.Protocol, "decoding typed payload", err)
	}
	return fromTypedNode(node)
}

func toTypedNode(v tree.Value) typedNode {
	switch t := v.(type) {
	case tree.Leaf:
		return typedNode{Kind: "leaf", Raw: t.Raw}

	case tree.Sequence:
		items := make([]typedNode, len(t.Items))
		for i, item := range t.Items {
			items[i] = toTypedNode(item)
		}
		return typedNode{Kind: "sequence", Items: items}

	case tree.Mapping:
		entries := make(map[string]typedNode, t.Len())
		for _, k := range t.Keys() {
			v, _ := t.Get(k)
			entries[k] = toTypedNode(v)
		}
		return typedNode{Kind: "mapping", Entries: entries}

	case tree.Set:
		members := t.Items()
		items := make([]typedNode, len(members))
		for i, item := range members {
			items[i] = toTypedNode(item)
		}
		return typedNode{Kind: "set", Items: items}

	case tree.Record:
		order := t.FieldOrder()
		fields := make(map[string]typedNode, len(order))
		for _, name := range order {
			fields[name] = toTypedNode(t.Fields[name])
		}
		return typedNode{Kind: "record", Type: t.Type, Order: order, Fields: fields}

	default:
		return typedNode{Kind: "leaf"}
	}
}

func fromTypedNode(n typedNode) (tree.Value, error) {
	switch n.Kind {
	case "leaf":
		return tree.Leaf{Raw: n.Raw}, nil

	case "sequence":
		items := make([]tree.Value, len(n.Items))
		for i, child := range n.Items {
			v, err := fromTypedNode(child)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return tree.NewSequence(items...), nil

	case "mapping":
		entries := make(map[string]tree.Value, len(n.Entries))
		for k, child := range n.Entries {
			v, err := fromTypedNode(child)
			if err != nil {
				return nil, err
			}
			entries[k] = v
		}
		return tree.NewMapping(entries), nil

	case "set":
		items := make([]tree.Value, len(n.Items))
		for i, child := range n.Items {
			v, err := fromTypedNode(child)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return tree.NewSet(items...), nil

	case "record":
		fields := make(map[string]tree.Value, len(n.Fields))
		for name, child := range n.Fields {
			v, err := fromTypedNode(child)
			if err != nil {
				return nil, err
			}
			fields[name] = v
		}
		return tree.NewRecord(n.Type, n.Order, fields), nil

	default:
		return nil, cerrors.New(cerrors.Protocol, "unknown typed node kind: "+n.Kind)
	}
}
