package configstore

import (
	"fmt"

	"github.com/geofffranks/yaml"

	"github.com/wayneeseguin/convergent/internal/cerrors"
	"github.com/wayneeseguin/convergent/pkg/tree"
)

// Encode renders v using the legacy geofffranks/yaml fork, the format the
// original configuration store persists its Deployment document in. This
// is deliberately a different codec from pkg/wire's canonical yaml.v3
// encoding: the store's on-disk format is a legacy collaborator's
// concern, not part of the hash-stable wire protocol.
func Encode(v tree.Value) ([]byte, error) {
	generic := toGeneric(v)
	data, err := yaml.Marshal(generic)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Fatal, "marshaling configuration store document", err)
	}
	return data, nil
}

// Decode parses legacy-format YAML bytes into a tree.Value. A map carrying
// the "__type" marker that Encode writes for a Record comes back as
// tree.Record; every other associative container comes back as
// tree.Mapping and every list as tree.Sequence, so a Set is not
// preserved across this boundary.
func Decode(data []byte) (tree.Value, error) {
	var generic interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, cerrors.Wrap(cerrors.Fatal, "unmarshaling configuration store document", err)
	}
	return fromGeneric(generic), nil
}

// toGeneric converts a tree.Value into plain Go values (map[string]any,
// []any, scalars) that geofffranks/yaml can marshal.
func toGeneric(v tree.Value) interface{} {
	switch t := v.(type) {
	case tree.Leaf:
		return t.Raw

	case tree.Sequence:
		out := make([]interface{}, len(t.Items))
		for i, item := range t.Items {
			out[i] = toGeneric(item)
		}
		return out

	case tree.Mapping:
		out := make(map[string]interface{}, t.Len())
		for _, k := range t.Keys() {
			child, _ := t.Get(k)
			out[k] = toGeneric(child)
		}
		return out

	case tree.Set:
		members := t.Items()
		out := make([]interface{}, len(members))
		for i, item := range members {
			out[i] = toGeneric(item)
		}
		return out

	case tree.Record:
		order := t.FieldOrder()
		out := make(map[string]interface{}, len(order)+1)
		out["__type"] = t.Type
		for _, name := range order {
			out[name] = toGeneric(t.Fields[name])
		}
		return out

	default:
		return nil
	}
}

// fromGeneric converts a value decoded by geofffranks/yaml (scalars,
// []interface{}, and map[interface{}]interface{} or map[string]interface{}
// depending on the source document) into a tree.Value. A map carrying a
// "__type" key — this store's own round-trip marker, written by
// toGeneric for a Record — comes back as a tree.Record; any other map
// comes back as a tree.Mapping.
func fromGeneric(v interface{}) tree.Value {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		strMap := make(map[string]interface{}, len(t))
		for k, val := range t {
			strMap[fmt.Sprintf("%v", k)] = val
		}
		return fromGeneric(strMap)

	case map[string]interface{}:
		if typ, ok := t["__type"]; ok {
			typeName, _ := typ.(string)
			order := make([]string, 0, len(t)-1)
			fields := make(map[string]tree.Value, len(t)-1)
			for k, val := range t {
				if k == "__type" {
					continue
				}
				order = append(order, k)
				fields[k] = fromGeneric(val)
			}
			return tree.NewRecord(typeName, order, fields)
		}

		entries := make(map[string]tree.Value, len(t))
		for k, val := range t {
			entries[k] = fromGeneric(val)
		}
		return tree.NewMapping(entries)

	case []interface{}:
		items := make([]tree.Value, len(t))
		for i, item := range t {
			items[i] = fromGeneric(item)
		}
		return tree.NewSequence(items...)

	case nil:
		return tree.Leaf{Raw: nil}

	default:
		return tree.Leaf{Raw: t}
	}
}
