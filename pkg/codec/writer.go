package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"bkz/pkg/event"

	"github.com/cespare/xxhash/v2"
)

// Writer is the compressed output stream. Bytes written to it are buffered
// until Jobs blocks are available; those blocks are then encoded in parallel
// and written to the destination in order.
type Writer struct {
	dst       io.WriteCloser
	opts      Options
	pipeline  pipeline
	codec     entropyCodec
	buf       []byte
	limit     int // Jobs*BlockSize, the buffered bytes that trigger a flush
	blockID   int
	written   atomic.Uint64
	listeners []event.Listener
	header    bool
	closed    bool
	err       error
}

// NewWriter validates opts and creates a Writer on top of dst. Nothing is
// written until the first block is full or Close is called.
func NewWriter(dst io.WriteCloser, opts Options) (*Writer, error) {
	if dst == nil {
		return nil, fmt.Errorf("%w: nil destination", ErrInvalidConfig)
	}
	opts, err := opts.Validate()
	if err != nil {
		return nil, err
	}
	p, _, err := parsePipeline(opts.Transform)
	if err != nil {
		return nil, err
	}
	c, err := newEntropyCodec(opts.Codec)
	if err != nil {
		return nil, err
	}
	return &Writer{
		dst:      dst,
		opts:     opts,
		pipeline: p,
		codec:    c,
		limit:    int(opts.BlockSize) * int(opts.Jobs),
	}, nil
}

// AddListener registers a listener for block level events. It must be called
// before the first Write.
func (w *Writer) AddListener(l event.Listener) bool {
	if l == nil {
		return false
	}
	w.listeners = append(w.listeners, l)
	return true
}

// Options returns the validated options, with canonical codec and transform names.
func (w *Writer) Options() Options {
	return w.opts
}

// Written returns the number of container bytes written to the destination.
func (w *Writer) Written() uint64 {
	return w.written.Load()
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	if w.err != nil {
		return 0, w.err
	}
	n := 0
	for len(p) > 0 {
		chunk := min(w.limit-len(w.buf), len(p))
		w.grow(len(w.buf) + chunk)
		w.buf = append(w.buf, p[:chunk]...)
		p = p[chunk:]
		n += chunk
		if len(w.buf) == w.limit {
			if err := w.flush(); err != nil {
				w.err = err
				return n, err
			}
		}
	}
	return n, nil
}

// grow makes room for need bytes. The buffer doubles up to limit so small
// streams never allocate Jobs full blocks.
func (w *Writer) grow(need int) {
	if need <= cap(w.buf) {
		return
	}
	size := min(max(need, 2*cap(w.buf), 64*1024), w.limit)
	buf := make([]byte, len(w.buf), size)
	copy(buf, w.buf)
	w.buf = buf
}

// Close flushes pending blocks, writes the end marker and closes the
// destination. Calling Close again returns the result of the first call.
func (w *Writer) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	defer w.codec.Close()

	err := w.err
	if err == nil {
		err = w.flush()
	}
	if err == nil {
		err = w.writeHeader()
	}
	if err == nil {
		var end [4]byte
		err = w.emit(end[:])
	}
	if cerr := w.dst.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close destination: %w", cerr)
	}
	w.err = err
	return err
}

func (w *Writer) writeHeader() error {
	if w.header {
		return nil
	}
	w.header = true
	hdr := make([]byte, 0, 16+len(w.opts.Transform)+len(w.opts.Codec))
	hdr = append(hdr, Magic...)
	hdr = append(hdr, Version)
	var flags byte
	if w.opts.Checksum {
		flags |= flagChecksum
	}
	hdr = append(hdr, flags)
	hdr = append(hdr, byte(len(w.opts.Transform)))
	hdr = append(hdr, w.opts.Transform...)
	hdr = append(hdr, byte(len(w.opts.Codec)))
	hdr = append(hdr, w.opts.Codec...)
	hdr = binary.BigEndian.AppendUint32(hdr, uint32(w.opts.BlockSize))
	if err := w.emit(hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// flush encodes every buffered block and writes the frames in block order.
func (w *Writer) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	if err := w.writeHeader(); err != nil {
		return err
	}

	blockSize := int(w.opts.BlockSize)
	count := (len(w.buf) + blockSize - 1) / blockSize
	frames := make([][]byte, count)
	errs := make([]error, count)
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		start := i * blockSize
		end := min(start+blockSize, len(w.buf))
		wg.Add(1)
		go func(i int, block []byte) {
			defer wg.Done()
			frames[i], errs[i] = w.encodeBlock(w.blockID+i, block)
		}(i, w.buf[start:end])
	}
	wg.Wait()

	for i, frame := range frames {
		if errs[i] != nil {
			return fmt.Errorf("encode block %d: %w", w.blockID+i, errs[i])
		}
		if err := w.emit(frame); err != nil {
			return fmt.Errorf("write block %d: %w", w.blockID+i, err)
		}
	}
	w.blockID += count
	w.buf = w.buf[:0]
	return nil
}

// encodeBlock transforms block in place and returns its frame.
func (w *Writer) encodeBlock(id int, block []byte) ([]byte, error) {
	var hash uint64
	if w.opts.Checksum {
		hash = xxhash.Sum64(block)
	}
	w.notify(event.BeforeTransform, id, len(block), hash)
	w.pipeline.forward(block)
	w.notify(event.AfterTransform, id, len(block), hash)

	w.notify(event.BeforeEntropy, id, len(block), hash)
	mode := modeCoded
	payload, err := w.codec.Encode(nil, block)
	if errors.Is(err, errIncompressible) || (err == nil && (len(payload) == 0 || len(payload) >= len(block))) {
		mode, payload, err = modeStored, block, nil
	}
	if err != nil {
		return nil, err
	}
	w.notify(event.AfterEntropy, id, len(payload), hash)

	frame := make([]byte, 0, 17+len(payload))
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(payload)))
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(block)))
	frame = append(frame, mode)
	if w.opts.Checksum {
		frame = binary.BigEndian.AppendUint64(frame, hash)
	}
	return append(frame, payload...), nil
}

func (w *Writer) notify(t event.Type, id, size int, hash uint64) {
	if len(w.listeners) == 0 {
		return
	}
	var evt *event.Event
	if w.opts.Checksum {
		evt = event.NewWithHash(t, id, int64(size), hash)
	} else {
		evt = event.New(t, id, int64(size))
	}
	event.Notify(w.listeners, evt)
}

func (w *Writer) emit(b []byte) error {
	n, err := w.dst.Write(b)
	w.written.Add(uint64(n))
	if err == nil && n != len(b) {
		err = io.ErrShortWrite
	}
	return err
}
