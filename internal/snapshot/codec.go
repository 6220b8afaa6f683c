package snapshot

import (
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects how the offset payload of a snapshot is compressed.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecS2
	CodecZstd
	CodecLZ4
)

// String returns the codec name.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecS2:
		return "s2"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ParseCodec maps a codec name to a Codec.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "none", "":
		return CodecNone, nil
	case "s2":
		return CodecS2, nil
	case "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	}
	return 0, fmt.Errorf("unknown snapshot codec %q", name)
}

var zstdEncoderPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(fmt.Sprintf("create zstd encoder: %v", err))
		}
		return enc
	},
}

var zstdDecoderPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("create zstd decoder: %v", err))
		}
		return dec
	},
}

var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}

// compress encodes data with c and returns the codec actually used. LZ4
// reports incompressible input, which is then stored uncompressed.
func compress(c Codec, data []byte) ([]byte, Codec, error) {
	switch c {
	case CodecNone:
		return data, c, nil
	case CodecS2:
		return s2.Encode(nil, data), c, nil
	case CodecZstd:
		enc, _ := zstdEncoderPool.Get().(*zstd.Encoder)
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), c, nil
	case CodecLZ4:
		if len(data) == 0 {
			return nil, c, nil
		}
		lc, _ := lz4CompressorPool.Get().(*lz4.Compressor)
		defer lz4CompressorPool.Put(lc)

		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lc.CompressBlock(data, dst)
		if err != nil {
			return nil, c, err
		}
		if n == 0 {
			return data, CodecNone, nil
		}
		return dst[:n], c, nil
	}
	return nil, c, fmt.Errorf("unknown snapshot codec %d", uint8(c))
}

// decompress decodes data produced by compress. rawLen is the expected
// decoded size.
func decompress(c Codec, data []byte, rawLen int) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch c {
	case CodecNone:
		out = data
	case CodecS2:
		out, err = s2.Decode(nil, data)
	case CodecZstd:
		dec, _ := zstdDecoderPool.Get().(*zstd.Decoder)
		defer zstdDecoderPool.Put(dec)
		out, err = dec.DecodeAll(data, make([]byte, 0, rawLen))
	case CodecLZ4:
		if rawLen == 0 {
			return nil, nil
		}
		out = make([]byte, rawLen)
		var n int
		n, err = lz4.UncompressBlock(data, out)
		out = out[:n]
	default:
		return nil, fmt.Errorf("unknown snapshot codec %d", uint8(c))
	}
	if err != nil {
		return nil, fmt.Errorf("%s decompression failed: %w", c, err)
	}
	if len(out) != rawLen {
		return nil, fmt.Errorf("%s payload decoded to %d bytes, expected %d", c, len(out), rawLen)
	}
	return out, nil
}
