package codec

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// errIncompressible tells the writer to store the block without entropy coding.
var errIncompressible = errors.New("block is incompressible")

// entropyCodec compresses whole blocks. Encode and Decode must be safe for
// concurrent use since blocks of one stream are coded in parallel.
type entropyCodec interface {
	// Encode returns the coded form of src, possibly reusing dst.
	Encode(dst, src []byte) ([]byte, error)
	// Decode decodes src into dst, which has the exact original length.
	Decode(dst, src []byte) error
	Close()
}

var entropyCodecs = map[string]func() (entropyCodec, error){
	"NONE":   func() (entropyCodec, error) { return nullCodec{}, nil },
	"LZ4":    func() (entropyCodec, error) { return lz4Codec{}, nil },
	"S2":     func() (entropyCodec, error) { return s2Codec{}, nil },
	"SNAPPY": func() (entropyCodec, error) { return snappyCodec{}, nil },
	"ZSTD":   newZstdCodec,
}

func newEntropyCodec(name string) (entropyCodec, error) {
	mk, ok := entropyCodecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown entropy codec %q", ErrInvalidConfig, name)
	}
	return mk()
}

type nullCodec struct{}

func (nullCodec) Encode(dst, src []byte) ([]byte, error) {
	return nil, errIncompressible
}

func (nullCodec) Decode(dst, src []byte) error {
	if len(src) != len(dst) {
		return fmt.Errorf("%w: stored block size %d, expected %d", ErrInvalidFormat, len(src), len(dst))
	}
	copy(dst, src)
	return nil
}

func (nullCodec) Close() {}

type lz4Codec struct{}

func (lz4Codec) Encode(dst, src []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(src))
	if cap(dst) < bound {
		dst = make([]byte, bound)
	}
	dst = dst[:bound]
	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func (lz4Codec) Decode(dst, src []byte) error {
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return fmt.Errorf("lz4 decompress: %w", err)
	}
	if n != len(dst) {
		return fmt.Errorf("%w: lz4 block decoded to %d bytes, expected %d", ErrInvalidFormat, n, len(dst))
	}
	return nil
}

func (lz4Codec) Close() {}

type s2Codec struct{}

func (s2Codec) Encode(dst, src []byte) ([]byte, error) {
	return s2.Encode(dst[:cap(dst)], src), nil
}

func (s2Codec) Decode(dst, src []byte) error {
	out, err := s2.Decode(dst, src)
	if err != nil {
		return fmt.Errorf("s2 decompress: %w", err)
	}
	return checkDecoded("s2", out, dst)
}

func (s2Codec) Close() {}

type snappyCodec struct{}

func (snappyCodec) Encode(dst, src []byte) ([]byte, error) {
	return snappy.Encode(dst[:cap(dst)], src), nil
}

func (snappyCodec) Decode(dst, src []byte) error {
	out, err := snappy.Decode(dst, src)
	if err != nil {
		return fmt.Errorf("snappy decompress: %w", err)
	}
	return checkDecoded("snappy", out, dst)
}

func (snappyCodec) Close() {}

// zstdCodec shares one encoder and one decoder; EncodeAll and DecodeAll are
// safe for concurrent use.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() (entropyCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (c *zstdCodec) Encode(dst, src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, dst[:0]), nil
}

func (c *zstdCodec) Decode(dst, src []byte) error {
	out, err := c.dec.DecodeAll(src, dst[:0])
	if err != nil {
		return fmt.Errorf("zstd decompress: %w", err)
	}
	return checkDecoded("zstd", out, dst)
}

func (c *zstdCodec) Close() {
	c.enc.Close()
	c.dec.Close()
}

// checkDecoded makes sure the decoder produced exactly len(dst) bytes in dst.
func checkDecoded(name string, out, dst []byte) error {
	if len(out) != len(dst) {
		return fmt.Errorf("%w: %s block decoded to %d bytes, expected %d", ErrInvalidFormat, name, len(out), len(dst))
	}
	if len(out) > 0 && &out[0] != &dst[0] {
		copy(dst, out)
	}
	return nil
}
