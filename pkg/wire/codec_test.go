package wire

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wayneeseguin/convergent/pkg/tree"
)

func TestEncodeIsDeterministic(t *testing.T) {
	Convey("Encode produces identical bytes for structurally equal mappings built in different key orders", t, func() {
		a := tree.NewMapping(map[string]tree.Value{
			"z": tree.Leaf{Raw: 1},
			"a": tree.Leaf{Raw: 2},
		})
		b := tree.NewMapping(map[string]tree.Value{
			"a": tree.Leaf{Raw: 2},
			"z": tree.Leaf{Raw: 1},
		})

		encA, err := Encode(a)
		So(err, ShouldBeNil)
		encB, err := Encode(b)
		So(err, ShouldBeNil)
		So(encA, ShouldResemble, encB)
	})
}

func TestDecodeRoundTripsScalarsAndMaps(t *testing.T) {
	Convey("Decode recovers the plain values Encode produced", t, func() {
		v := tree.NewMapping(map[string]tree.Value{
			"name":  tree.Leaf{Raw: "worker-1"},
			"count": tree.Leaf{Raw: 3},
		})
		data, err := Encode(v)
		So(err, ShouldBeNil)

		decoded, err := Decode(data)
		So(err, ShouldBeNil)

		m, ok := decoded.(map[string]interface{})
		So(ok, ShouldBeTrue)
		So(m["name"], ShouldEqual, "worker-1")
		So(m["count"], ShouldEqual, 3)
	})
}

func TestCompressRoundTrip(t *testing.T) {
	Convey("Compress/Decompress round-trips arbitrary bytes", t, func() {
		payload := make([]byte, 0, CompressThreshold*2)
		for i := 0; i < CompressThreshold*2; i++ {
			payload = append(payload, byte(i%251))
		}

		compressed := Compress(payload)
		restored, err := Decompress(compressed)
		So(err, ShouldBeNil)
		So(restored, ShouldResemble, payload)
	})
}
