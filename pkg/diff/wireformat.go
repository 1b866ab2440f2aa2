package diff

import (
	"gopkg.in/yaml.v3"

	"github.com/wayneeseguin/convergent/internal/cerrors"
	"github.com/wayneeseguin/convergent/pkg/tree"
	"github.com/wayneeseguin/convergent/pkg/wire"
)

// wireOp is Op's transport representation: Value is carried as an
// already-encoded wire.EncodeTyped payload (yaml.v3 marshals a []byte
// field as base64), since Op.Value is an interface and can't be
// marshaled directly without losing its concrete tree.Value kind.
type wireOp struct {
	Kind  OpKind     `yaml:"kind"`
	Path  tree.Path  `yaml:"path"`
	Value []byte     `yaml:"value,omitempty"`
	Key   string     `yaml:"key,omitempty"`
}

// EncodePatch renders p for transport as an UPDATE_DIFF argument.
func EncodePatch(p Patch) ([]byte, error) {
	wireOps := make([]wireOp, len(p))
	for i, op := range p {
		wop := wireOp{Kind: op.Kind, Path: op.Path, Key: op.Key}
		if op.Value != nil {
			encoded, err := wire.EncodeTyped(op.Value)
			if err != nil {
				return nil, cerrors.Wrap(cerrors.Protocol, "encoding patch operation value", err)
			}
			wop.Value = encoded
		}
		wireOps[i] = wop
	}
	data, err := yaml.Marshal(wireOps)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Protocol, "encoding patch", err)
	}
	return data, nil
}

// DecodePatch reverses EncodePatch.
func DecodePatch(data []byte) (Patch, error) {
	var wireOps []wireOp
	if err := yaml.Unmarshal(data, &wireOps); err != nil {
		return nil, cerrors.Wrap(cerrors.Protocol, "decoding patch", err)
	}

	p := make(Patch, len(wireOps))
	for i, wop := range wireOps {
		op := Op{Kind: wop.Kind, Path: wop.Path, Key: wop.Key}
		if len(wop.Value) > 0 {
			v, err := wire.DecodeTyped(wop.Value)
			if err != nil {
				return nil, cerrors.Wrap(cerrors.Protocol, "decoding patch operation value", err)
			}
			op.Value = v
		}
		p[i] = op
	}
	return p, nil
}
