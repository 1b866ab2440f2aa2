package tree

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func sampleRecord() Record {
	return NewRecord("node", []string{"name", "replicas"}, map[string]Value{
		"name":     Leaf{Raw: "worker-1"},
		"replicas": Leaf{Raw: 3},
	})
}

func TestTransform(t *testing.T) {
	Convey("Transform on a Mapping", t, func() {
		m := NewMapping(map[string]Value{
			"a": Leaf{Raw: 1},
			"b": Leaf{Raw: 2},
		})

		Convey("replaces only the targeted subtree", func() {
			out, err := Transform(m, PathOf("a"), func(Value) (Value, error) {
				return Leaf{Raw: 99}, nil
			})
			So(err, ShouldBeNil)

			result := out.(Mapping)
			v, _ := result.Get("a")
			So(v, ShouldResemble, Leaf{Raw: 99})
			other, _ := result.Get("b")
			So(other, ShouldResemble, Leaf{Raw: 2})

			Convey("the original mapping is untouched", func() {
				v, _ := m.Get("a")
				So(v, ShouldResemble, Leaf{Raw: 1})
			})
		})

		Convey("returns PathNotFound for a missing key", func() {
			_, err := Transform(m, PathOf("missing"), func(Value) (Value, error) {
				return Leaf{Raw: 0}, nil
			})
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Transform descends through nested mappings", t, func() {
		inner := NewMapping(map[string]Value{"x": Leaf{Raw: "old"}})
		outer := NewMapping(map[string]Value{"inner": inner})

		out, err := Transform(outer, PathOf("inner", "x"), func(Value) (Value, error) {
			return Leaf{Raw: "new"}, nil
		})
		So(err, ShouldBeNil)

		got, _ := out.(Mapping).Get("inner")
		v, _ := got.(Mapping).Get("x")
		So(v, ShouldResemble, Leaf{Raw: "new"})
	})
}

func TestEvolverCommit(t *testing.T) {
	Convey("an Evolver defers invariant checks to Commit", t, func() {
		countsMustMatch := func(r Record) error {
			name, _ := r.Fields["name"].(Leaf)
			replicas, _ := r.Fields["replicas"].(Leaf)
			if name.Raw == "worker-1" && replicas.Raw != 3 {
				return errInvariant("replicas must stay 3 for worker-1")
			}
			return nil
		}
		rec := NewRecord("node", []string{"name", "replicas"}, map[string]Value{
			"name":     Leaf{Raw: "worker-1"},
			"replicas": Leaf{Raw: 3},
		}, countsMustMatch)

		Convey("two coordinated field writes that together satisfy the invariant succeed", func() {
			e := NewEvolver(rec)
			err := e.Transform(nil, func(leaf *Evolver) error {
				leaf.SetField("name", Leaf{Raw: "worker-2"})
				leaf.SetField("replicas", Leaf{Raw: 5})
				return nil
			})
			So(err, ShouldBeNil)

			out, err := e.Commit()
			So(err, ShouldBeNil)
			got := out.(Record)
			So(got.Fields["name"], ShouldResemble, Leaf{Raw: "worker-2"})
			So(got.Fields["replicas"], ShouldResemble, Leaf{Raw: 5})
		})

		Convey("a write that leaves the invariant violated fails at Commit", func() {
			e := NewEvolver(rec)
			_ = e.Transform(nil, func(leaf *Evolver) error {
				leaf.SetField("replicas", Leaf{Raw: 99})
				return nil
			})
			_, err := e.Commit()
			So(err, ShouldNotBeNil)
		})
	})

	Convey("child evolvers materialize before the parent applies its own writes", t, func() {
		inner := NewMapping(map[string]Value{"count": Leaf{Raw: 1}})
		outer := NewMapping(map[string]Value{"inner": inner, "tag": Leaf{Raw: "v1"}})

		e := NewEvolver(outer)
		err := e.Transform(PathOf("inner"), func(innerEv *Evolver) error {
			innerEv.SetField("count", Leaf{Raw: 2})
			return nil
		})
		So(err, ShouldBeNil)
		err = e.Transform(nil, func(rootEv *Evolver) error {
			rootEv.SetField("tag", Leaf{Raw: "v2"})
			return nil
		})
		So(err, ShouldBeNil)

		out, err := e.Commit()
		So(err, ShouldBeNil)

		result := out.(Mapping)
		innerOut, _ := result.Get("inner")
		v, _ := innerOut.(Mapping).Get("count")
		So(v, ShouldResemble, Leaf{Raw: 2})
		tag, _ := result.Get("tag")
		So(tag, ShouldResemble, Leaf{Raw: "v2"})
	})

	Convey("ReplaceRoot discards the original subtree entirely", t, func() {
		e := NewEvolver(NewMapping(map[string]Value{"a": Leaf{Raw: 1}}))
		e.ReplaceRoot(Leaf{Raw: "replaced"})
		out, err := e.Commit()
		So(err, ShouldBeNil)
		So(out, ShouldResemble, Leaf{Raw: "replaced"})
	})
}

func TestSetOperations(t *testing.T) {
	Convey("Set membership is keyed by canonical form, not pointer identity", t, func() {
		s := NewSet(Leaf{Raw: "a"}, Leaf{Raw: "b"})
		So(s.Contains(Leaf{Raw: "a"}), ShouldBeTrue)
		So(s.Len(), ShouldEqual, 2)

		added := s.With(Leaf{Raw: "c"})
		So(added.Len(), ShouldEqual, 3)
		So(s.Len(), ShouldEqual, 2)

		removed := added.Without(Leaf{Raw: "a"})
		So(removed.Contains(Leaf{Raw: "a"}), ShouldBeFalse)
		So(removed.Len(), ShouldEqual, 2)
	})
}

// errInvariant is a tiny helper so this test file doesn't need to import
// cerrors just to construct a plain error.
type errInvariant string

func (e errInvariant) Error() string { return string(e) }
