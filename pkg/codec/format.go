// Package codec implements the bkz block container: a stream is cut into
// fixed size blocks, each block goes through a reversible transform pipeline
// and an entropy codec, and is framed with its sizes and an optional xxHash64
// checksum of the original bytes.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

// Constants for the container format
const (
	Magic     = "BKZ1" // Magic number identifying the container
	Version   = 1      // Container format version
	Extension = ".bkz" // Conventional file extension
)

const (
	MinBlockSize     = 1024
	MaxBlockSize     = 1 << 30
	DefaultBlockSize = 4 * 1024 * 1024
	MaxJobs          = 64
)

const (
	flagChecksum = 1 << 0
)

// Block modes
const (
	modeStored byte = 0 // Transformed bytes, no entropy stage
	modeCoded  byte = 1 // Transformed bytes run through the entropy codec
)

var (
	ErrInvalidConfig = errors.New("invalid codec configuration")
	ErrInvalidFormat = errors.New("invalid container format")
	ErrChecksum      = errors.New("block checksum mismatch")
	ErrClosed        = errors.New("stream closed")
)

// Options configures a Writer.
type Options struct {
	BlockSize uint   // Bytes per block
	Checksum  bool   // Add an xxHash64 of each original block
	Jobs      uint   // Blocks encoded concurrently
	Codec     string // Entropy codec name
	Transform string // Transform pipeline, stages joined with '+'
}

// Validate checks the options and returns them with canonical names.
func (o Options) Validate() (Options, error) {
	if o.BlockSize < MinBlockSize || o.BlockSize > MaxBlockSize {
		return o, fmt.Errorf("%w: block size %d not in [%d..%d]", ErrInvalidConfig, o.BlockSize, MinBlockSize, MaxBlockSize)
	}
	if o.Jobs == 0 || o.Jobs > MaxJobs {
		return o, fmt.Errorf("%w: jobs %d not in [1..%d]", ErrInvalidConfig, o.Jobs, MaxJobs)
	}
	codecName := strings.ToUpper(strings.TrimSpace(o.Codec))
	if codecName == "" {
		codecName = "NONE"
	}
	if _, ok := entropyCodecs[codecName]; !ok {
		return o, fmt.Errorf("%w: unknown entropy codec %q", ErrInvalidConfig, o.Codec)
	}
	o.Codec = codecName
	_, name, err := parsePipeline(o.Transform)
	if err != nil {
		return o, err
	}
	o.Transform = name
	return o, nil
}

// CodecNames lists the supported entropy codecs.
func CodecNames() []string {
	return []string{"NONE", "LZ4", "S2", "SNAPPY", "ZSTD"}
}

// TransformNames lists the supported transform stages.
func TransformNames() []string {
	return []string{"NONE", "DELTA", "MTF", "XOR"}
}
