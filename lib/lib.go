// Package lib provides the public API of bkz: compress a file or a directory
// tree into .bkz containers, and verify a container against its source.
// It re-exports the types of the core and codec packages.
package lib

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"bkz/pkg/codec"
	"bkz/pkg/config"
	"bkz/pkg/core"
)

// Constants for the container format re-exported from codec
const (
	Magic            = codec.Magic
	Version          = codec.Version
	Extension        = codec.Extension
	DefaultBlockSize = codec.DefaultBlockSize
)

// Request, Summary and Error re-exported from core
type (
	Request    = core.Request
	Summary    = core.Summary
	FileResult = core.FileResult
	Error      = core.Error
	Code       = core.Code
	Option     = core.Option
)

var (
	WithLogger       = core.WithLogger
	WithStdio        = core.WithStdio
	WithFatalHandler = core.WithFatalHandler
)

// ErrMismatch is returned by Verify when a container does not decode to its source.
var ErrMismatch = errors.New("container does not match source")

// DefaultRequest returns a request with the default settings: LZ4 without
// transform, 4 MiB blocks, half the CPUs.
func DefaultRequest(input, output string) Request {
	return Request{
		InputName:  input,
		OutputName: output,
		Codec:      "LZ4",
		Transform:  "NONE",
		BlockSize:  codec.DefaultBlockSize,
		Jobs:       config.DefaultJobs(),
		Verbosity:  1,
	}
}

// Compress compresses input (a file or a directory) with the default settings.
// An empty output writes input.bkz next to each input file.
func Compress(input, output string) error {
	_, err := Run(context.Background(), DefaultRequest(input, output))
	return err
}

// Run compresses according to req.
func Run(ctx context.Context, req Request, opts ...Option) (Summary, error) {
	return core.NewCompressor(req, opts...).Run(ctx)
}

// Verify decodes container and checks that it reproduces source exactly.
func Verify(source, container string) error {
	src, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("cannot open source: %w", err)
	}
	defer src.Close()

	f, err := os.Open(container)
	if err != nil {
		return fmt.Errorf("cannot open container: %w", err)
	}
	defer f.Close()

	r, err := codec.NewReader(f)
	if err != nil {
		return fmt.Errorf("read container %s: %w", container, err)
	}
	defer r.Close()

	want := make([]byte, 64*1024)
	got := make([]byte, len(want))
	var offset int64
	for {
		n, rerr := io.ReadFull(src, want)
		m, derr := io.ReadFull(r, got[:n])
		if derr != nil && !errors.Is(derr, io.EOF) && !errors.Is(derr, io.ErrUnexpectedEOF) {
			return fmt.Errorf("decode container %s: %w", container, derr)
		}
		if m != n || !bytes.Equal(want[:n], got[:m]) {
			return fmt.Errorf("%w: %s differs from %s near offset %d", ErrMismatch, container, source, offset)
		}
		offset += int64(n)
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read source: %w", rerr)
		}
	}

	// The container must not hold more than the source.
	var extra [1]byte
	if n, err := r.Read(extra[:]); n > 0 {
		return fmt.Errorf("%w: %s is longer than %s", ErrMismatch, container, source)
	} else if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode container %s: %w", container, err)
	}
	return nil
}
