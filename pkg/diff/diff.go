package diff

import (
	"sort"

	"github.com/wayneeseguin/convergent/pkg/tree"
)

// Compute returns the patch that transforms a into b: applying the result
// to a yields a value equal to b, and diffing equal values yields the
// empty patch.
func Compute(a, b tree.Value) Patch {
	return computeAt(nil, a, b)
}

func computeAt(path tree.Path, a, b tree.Value) Patch {
	if a.Equal(b) {
		return nil
	}
	if a.ValueKind() != b.ValueKind() {
		return Patch{{Kind: OpSet, Path: path, Value: b}}
	}

	switch av := a.(type) {
	case tree.Record:
		return diffRecord(path, av, b.(tree.Record))
	case tree.Mapping:
		return diffMapping(path, av, b.(tree.Mapping))
	case tree.Set:
		return diffSet(path, av, b.(tree.Set))
	default:
		// Leaves and sequences have no recursive rule: a changed leaf or
		// a changed sequence is always replaced wholesale.
		return Patch{{Kind: OpSet, Path: path, Value: b}}
	}
}

func diffRecord(path tree.Path, a, b tree.Record) Patch {
	if a.Type != b.Type {
		return Patch{{Kind: OpSet, Path: path, Value: b}}
	}
	aOrder := a.FieldOrder()
	bOrder := b.FieldOrder()
	if len(aOrder) != len(bOrder) {
		// Records declare a fixed field schema; a changed field count
		// means a differently-shaped record of the same type name, which
		// this algebra treats as a wholesale replacement rather than a
		// field-by-field add/remove (evolvers never remove record
		// fields; see pkg/tree's Evolver.Commit).
		return Patch{{Kind: OpSet, Path: path, Value: b}}
	}

	names := make([]string, len(aOrder))
	copy(names, aOrder)
	sort.Strings(names)

	var patch Patch
	for _, name := range names {
		av, aok := a.Fields[name]
		bv, bok := b.Fields[name]
		if !aok || !bok {
			return Patch{{Kind: OpSet, Path: path, Value: b}}
		}
		if !av.Equal(bv) {
			patch = append(patch, computeAt(path.Append(name), av, bv)...)
		}
	}
	return patch
}

func diffMapping(path tree.Path, a, b tree.Mapping) Patch {
	aKeys := a.Keys()
	bKeys := b.Keys()
	inA := make(map[string]bool, len(aKeys))
	for _, k := range aKeys {
		inA[k] = true
	}
	inB := make(map[string]bool, len(bKeys))
	for _, k := range bKeys {
		inB[k] = true
	}

	var common, onlyA, onlyB []string
	for _, k := range aKeys {
		if inB[k] {
			common = append(common, k)
		} else {
			onlyA = append(onlyA, k)
		}
	}
	for _, k := range bKeys {
		if !inA[k] {
			onlyB = append(onlyB, k)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	var patch Patch
	for _, k := range common {
		av, _ := a.Get(k)
		bv, _ := b.Get(k)
		if !av.Equal(bv) {
			patch = append(patch, computeAt(path.Append(k), av, bv)...)
		}
	}
	for _, k := range onlyB {
		bv, _ := b.Get(k)
		patch = append(patch, Op{Kind: OpSet, Path: path.Append(k), Value: bv})
	}
	for _, k := range onlyA {
		patch = append(patch, Op{Kind: OpRemove, Path: path, Key: k})
	}
	return patch
}

func diffSet(path tree.Path, a, b tree.Set) Patch {
	var patch Patch
	for _, item := range a.Items() {
		if !b.Contains(item) {
			patch = append(patch, Op{Kind: OpRemove, Path: path, Value: item})
		}
	}
	for _, item := range b.Items() {
		if !a.Contains(item) {
			patch = append(patch, Op{Kind: OpAdd, Path: path, Value: item})
		}
	}
	return patch
}
