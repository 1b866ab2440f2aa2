package diff

import "github.com/wayneeseguin/convergent/pkg/tree"

// Apply routes every operation in p through an evolver rooted at root, then
// commits. Routing through an evolver (rather than applying operations
// one-at-a-time to finished immutable trees) matters because intermediate
// states produced by a partial patch may violate a record invariant that
// the fully-applied patch satisfies.
func Apply(root tree.Value, p Patch) (tree.Value, error) {
	ev := tree.NewEvolver(root)

	for _, op := range p {
		op := op
		switch op.Kind {
		case OpSet:
			if len(op.Path) == 0 {
				ev.ReplaceRoot(op.Value)
				continue
			}
			parent, field := op.Path.Parent()
			if err := ev.Transform(parent, func(e *tree.Evolver) error {
				e.SetField(field, op.Value)
				return nil
			}); err != nil {
				return nil, err
			}

		case OpAdd:
			if err := ev.Transform(op.Path, func(e *tree.Evolver) error {
				e.AddItem(op.Value)
				return nil
			}); err != nil {
				return nil, err
			}

		case OpRemove:
			if op.Key != "" {
				if err := ev.Transform(op.Path, func(e *tree.Evolver) error {
					e.RemoveKey(op.Key)
					return nil
				}); err != nil {
					return nil, err
				}
			} else {
				if err := ev.Transform(op.Path, func(e *tree.Evolver) error {
					e.RemoveItem(op.Value)
					return nil
				}); err != nil {
					return nil, err
				}
			}
		}
	}

	return ev.Commit()
}
