package transport

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/wayneeseguin/convergent/internal/cerrors"
	"github.com/wayneeseguin/convergent/pkg/wire"
)

// MaxFrameValueSize is the per-value byte limit the underlying frame layer
// imposes. Any argument whose serialized form exceeds this is split into
// ordered numbered fragments before being carried in the frame.
const MaxFrameValueSize = 64 * 1024

const chunkCountSuffix = ".$chunks"
const compressedMarkerSuffix = ".$zstd"

// EncodeArgs turns named raw values into the wire representation of a
// frame's argument dictionary: values bigger than wire.CompressThreshold
// are zstd-compressed, and values still bigger than MaxFrameValueSize
// (after compression) are split into name.0, name.1, ... fragments.
func EncodeArgs(args map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(args))
	for name, data := range args {
		compressed := false
		if len(data) > wire.CompressThreshold {
			data = wire.Compress(data)
			compressed = true
		}
		if len(data) <= MaxFrameValueSize {
			out[name] = data
			if compressed {
				out[name+compressedMarkerSuffix] = []byte("1")
			}
			continue
		}
		n := 0
		for offset := 0; offset < len(data); offset += MaxFrameValueSize {
			end := offset + MaxFrameValueSize
			if end > len(data) {
				end = len(data)
			}
			out[fmt.Sprintf("%s.%d", name, n)] = data[offset:end]
			n++
		}
		out[name+chunkCountSuffix] = []byte(strconv.Itoa(n))
		if compressed {
			out[name+compressedMarkerSuffix] = []byte("1")
		}
	}
	return out
}

// DecodeArgs reverses EncodeArgs: it rejoins numbered fragments and
// decompresses any value marked as compressed.
func DecodeArgs(args map[string][]byte) (map[string][]byte, error) {
	out := make(map[string][]byte)
	consumed := map[string]bool{}
	compressedNames := map[string]bool{}

	for name := range args {
		if strings.HasSuffix(name, compressedMarkerSuffix) {
			compressedNames[strings.TrimSuffix(name, compressedMarkerSuffix)] = true
			consumed[name] = true
		}
	}

	for name, data := range args {
		if !strings.HasSuffix(name, chunkCountSuffix) {
			continue
		}
		base := strings.TrimSuffix(name, chunkCountSuffix)
		n, err := strconv.Atoi(string(data))
		if err != nil {
			return nil, cerrors.Wrap(cerrors.Protocol, "parsing fragment count for "+base, err)
		}
		var buf bytes.Buffer
		for i := 0; i < n; i++ {
			key := fmt.Sprintf("%s.%d", base, i)
			part, ok := args[key]
			if !ok {
				return nil, cerrors.WithPath(cerrors.Protocol, key, "missing fragment")
			}
			buf.Write(part)
			consumed[key] = true
		}
		out[base] = buf.Bytes()
		consumed[name] = true
	}

	for name, data := range args {
		if consumed[name] {
			continue
		}
		if _, already := out[name]; already {
			continue
		}
		out[name] = data
	}

	for name, data := range out {
		if !compressedNames[name] {
			continue
		}
		restored, err := wire.Decompress(data)
		if err != nil {
			return nil, err
		}
		out[name] = restored
	}

	return out, nil
}
