package transport

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestEncodeDecodeArgsRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"small", 100},
		{"just under limit", MaxFrameValueSize - 1},
		{"exactly at limit", MaxFrameValueSize},
		{"needs two fragments", MaxFrameValueSize + 1},
		{"needs several fragments", MaxFrameValueSize*3 + 517},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			// Pseudo-random bytes do not compress, so sizes above the
			// limit really reach the fragment path.
			data := make([]byte, c.size)
			rand.New(rand.NewSource(1)).Read(data)

			encoded := EncodeArgs(map[string][]byte{"value": data})
			decoded, err := DecodeArgs(encoded)
			if err != nil {
				t.Fatalf("DecodeArgs: %v", err)
			}
			if !bytes.Equal(decoded["value"], data) {
				t.Fatalf("round trip mismatch for size %d", c.size)
			}
		})
	}
}

func TestEncodeArgsFragmentsAreNumberedAndOrdered(t *testing.T) {
	// Pseudo-random bytes do not compress, so the value is still over
	// MaxFrameValueSize after EncodeArgs' zstd step and gets fragmented.
	data := make([]byte, MaxFrameValueSize+10)
	rand.New(rand.NewSource(1)).Read(data)

	encoded := EncodeArgs(map[string][]byte{"big": data})

	if _, ok := encoded["big.0"]; !ok {
		t.Fatal("expected fragment big.0")
	}
	if _, ok := encoded["big.1"]; !ok {
		t.Fatal("expected fragment big.1")
	}
	if _, ok := encoded["big.$chunks"]; !ok {
		t.Fatal("expected a chunk count marker")
	}
}

func TestDecodeArgsMissingFragmentErrors(t *testing.T) {
	broken := map[string][]byte{
		"big.$chunks": []byte("2"),
		"big.0":       []byte("only one fragment present"),
	}
	if _, err := DecodeArgs(broken); err == nil {
		t.Fatal("expected an error for a missing fragment")
	}
}

func TestEncodeArgsCompressesLargeValues(t *testing.T) {
	// A large, highly compressible payload should come back identical
	// after EncodeArgs/DecodeArgs even though it gets zstd-compressed in
	// between (the $zstd marker should trigger decompression).
	data := bytes.Repeat([]byte("convergent-state-fragment"), 4096)

	encoded := EncodeArgs(map[string][]byte{"state": data})
	if len(encoded["state"]) >= len(data) {
		t.Fatalf("expected compression to shrink a highly repetitive payload")
	}

	decoded, err := DecodeArgs(encoded)
	if err != nil {
		t.Fatalf("DecodeArgs: %v", err)
	}
	if !bytes.Equal(decoded["state"], data) {
		t.Fatal("round trip mismatch after compression")
	}
}
