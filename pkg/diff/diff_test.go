package diff

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wayneeseguin/convergent/pkg/tree"
)

func cfg(name string, replicas int) tree.Record {
	return tree.NewRecord("node", []string{"name", "replicas"}, map[string]tree.Value{
		"name":     tree.Leaf{Raw: name},
		"replicas": tree.Leaf{Raw: replicas},
	})
}

func TestComputeIdentity(t *testing.T) {
	Convey("diff(A, A) is the empty patch", t, func() {
		a := cfg("worker-1", 3)
		So(Compute(a, a).Empty(), ShouldBeTrue)
	})
}

func TestComputeAndApplyRoundTrip(t *testing.T) {
	Convey("applying diff(A, B) to A yields B", t, func() {
		Convey("for a leaf change inside a record", func() {
			a := cfg("worker-1", 3)
			b := cfg("worker-1", 5)

			p := Compute(a, b)
			So(p.Empty(), ShouldBeFalse)

			out, err := Apply(a, p)
			So(err, ShouldBeNil)
			So(out.Equal(b), ShouldBeTrue)
		})

		Convey("for mapping key additions, removals, and changes together", func() {
			a := tree.NewMapping(map[string]tree.Value{
				"keep":    tree.Leaf{Raw: 1},
				"change":  tree.Leaf{Raw: "old"},
				"removed": tree.Leaf{Raw: true},
			})
			b := tree.NewMapping(map[string]tree.Value{
				"keep":   tree.Leaf{Raw: 1},
				"change": tree.Leaf{Raw: "new"},
				"added":  tree.Leaf{Raw: 42},
			})

			p := Compute(a, b)
			out, err := Apply(a, p)
			So(err, ShouldBeNil)
			So(out.Equal(b), ShouldBeTrue)
		})

		Convey("for set additions and removals", func() {
			a := tree.NewSet(tree.Leaf{Raw: "x"}, tree.Leaf{Raw: "y"})
			b := tree.NewSet(tree.Leaf{Raw: "y"}, tree.Leaf{Raw: "z"})

			p := Compute(a, b)
			out, err := Apply(a, p)
			So(err, ShouldBeNil)
			So(out.Equal(b), ShouldBeTrue)
		})

		Convey("for a root type change (wholesale replace)", func() {
			a := tree.Leaf{Raw: "a"}
			b := tree.NewMapping(map[string]tree.Value{"x": tree.Leaf{Raw: 1}})

			p := Compute(a, b)
			So(p, ShouldResemble, Patch{{Kind: OpSet, Path: nil, Value: b}})

			out, err := Apply(a, p)
			So(err, ShouldBeNil)
			So(out.Equal(b), ShouldBeTrue)
		})

		Convey("for nested mapping changes at depth", func() {
			a := tree.NewMapping(map[string]tree.Value{
				"nodes": tree.NewMapping(map[string]tree.Value{
					"n1": cfg("worker-1", 3),
				}),
			})
			b := tree.NewMapping(map[string]tree.Value{
				"nodes": tree.NewMapping(map[string]tree.Value{
					"n1": cfg("worker-1", 7),
				}),
			})

			p := Compute(a, b)
			out, err := Apply(a, p)
			So(err, ShouldBeNil)
			So(out.Equal(b), ShouldBeTrue)
		})
	})
}

func TestComposeHomomorphism(t *testing.T) {
	Convey("Compose(p, q).Apply(t) behaves as q.Apply(p.Apply(t))", t, func() {
		a := cfg("worker-1", 1)
		b := cfg("worker-1", 2)
		c := cfg("worker-2", 2)

		p := Compute(a, b)
		q := Compute(b, c)

		viaCompose, err := Apply(a, Compose(p, q))
		So(err, ShouldBeNil)

		intermediate, err := Apply(a, p)
		So(err, ShouldBeNil)
		viaSequential, err := Apply(intermediate, q)
		So(err, ShouldBeNil)

		So(viaCompose.Equal(viaSequential), ShouldBeTrue)
		So(viaCompose.Equal(c), ShouldBeTrue)
	})
}

func TestApplyContinuesAfterRootReplace(t *testing.T) {
	Convey("a root-replacing SET followed by a field SET in the same patch applies both", t, func() {
		a := tree.Leaf{Raw: "a"}
		b := cfg("worker-1", 3)

		p := Patch{
			{Kind: OpSet, Path: nil, Value: b},
			{Kind: OpSet, Path: tree.Path{"name"}, Value: tree.Leaf{Raw: "worker-2"}},
		}

		out, err := Apply(a, p)
		So(err, ShouldBeNil)

		want := cfg("worker-2", 3)
		So(out.Equal(want), ShouldBeTrue)
	})
}

func TestDeterministicOrdering(t *testing.T) {
	Convey("diffing the same pair of mappings twice produces an identical patch", t, func() {
		a := tree.NewMapping(map[string]tree.Value{
			"b": tree.Leaf{Raw: 1},
			"a": tree.Leaf{Raw: 1},
			"c": tree.Leaf{Raw: 1},
		})
		b := tree.NewMapping(map[string]tree.Value{
			"a": tree.Leaf{Raw: 2},
			"b": tree.Leaf{Raw: 2},
			"d": tree.Leaf{Raw: 2},
		})

		p1 := Compute(a, b)
		p2 := Compute(a, b)
		So(p1, ShouldResemble, p2)
	})
}
