package tree

import "github.com/wayneeseguin/convergent/internal/cerrors"

// ErrPathNotFound reports the kind used when a path walk fails to find a
// segment in a record or mapping.
const ErrPathNotFound = cerrors.Invariant

// pathNotFound builds the standard error for a missing path segment.
func pathNotFound(p Path) error {
	return cerrors.WithPath(ErrPathNotFound, p.String(), "path not found")
}

// Transform returns a new tree equal to v except at path, where the
// subtree is replaced by fn(old_subtree). It is pure: v is never mutated.
func Transform(v Value, path Path, fn func(Value) (Value, error)) (Value, error) {
	if len(path) == 0 {
		return fn(v)
	}
	seg, rest := path.Head()

	switch t := v.(type) {
	case Record:
		child, ok := t.Fields[seg]
		if !ok {
			return nil, pathNotFound(path)
		}
		newChild, err := Transform(child, rest, fn)
		if err != nil {
			return nil, err
		}
		return t.WithField(seg, newChild), nil

	case Mapping:
		child, ok := t.Get(seg)
		if !ok {
			return nil, pathNotFound(path)
		}
		newChild, err := Transform(child, rest, fn)
		if err != nil {
			return nil, err
		}
		return t.With(seg, newChild), nil

	default:
		return nil, pathNotFound(path)
	}
}
