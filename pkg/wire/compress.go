package wire

import (
	"github.com/klauspost/compress/zstd"

	"github.com/wayneeseguin/convergent/internal/cerrors"
)

// CompressThreshold is the payload size above which pkg/transport
// compresses a value before chunking it.
const CompressThreshold = 16 * 1024

var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(err)
	}
	decoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
}

// Compress returns the zstd-compressed form of data. Callers only bother
// calling it once len(data) exceeds CompressThreshold.
func Compress(data []byte) []byte {
	return encoder.EncodeAll(data, nil)
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Protocol, "decompressing payload", err)
	}
	return out, nil
}
