package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// Header describes a container as read from its first bytes.
type Header struct {
	Version   uint8
	Checksum  bool
	Transform string
	Codec     string
	BlockSize uint32
}

// Reader decodes a container produced by Writer.
type Reader struct {
	br       *bufio.Reader
	header   Header
	pipeline pipeline
	codec    entropyCodec
	block    []byte
	payload  []byte
	pending  []byte
	blockID  int
	eof      bool
}

// NewReader reads and validates the container header.
func NewReader(src io.Reader) (*Reader, error) {
	br := bufio.NewReader(src)
	hdr, err := readHeader(br)
	if err != nil {
		return nil, err
	}
	p, _, err := parsePipeline(hdr.Transform)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	c, err := newEntropyCodec(hdr.Codec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return &Reader{br: br, header: hdr, pipeline: p, codec: c}, nil
}

func readHeader(br *bufio.Reader) (Header, error) {
	var hdr Header

	var magicBytes [4]byte
	if _, err := io.ReadFull(br, magicBytes[:]); err != nil {
		return hdr, fmt.Errorf("read magic: %w", err)
	}
	if string(magicBytes[:]) != Magic {
		return hdr, fmt.Errorf("%w: magic %q", ErrInvalidFormat, string(magicBytes[:]))
	}

	if err := binary.Read(br, binary.BigEndian, &hdr.Version); err != nil {
		return hdr, fmt.Errorf("read version: %w", err)
	}
	if hdr.Version != Version {
		return hdr, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, hdr.Version)
	}

	flags, err := br.ReadByte()
	if err != nil {
		return hdr, fmt.Errorf("read flags: %w", err)
	}
	hdr.Checksum = flags&flagChecksum != 0

	if hdr.Transform, err = readName(br); err != nil {
		return hdr, fmt.Errorf("read transform: %w", err)
	}
	if hdr.Codec, err = readName(br); err != nil {
		return hdr, fmt.Errorf("read codec: %w", err)
	}

	if err := binary.Read(br, binary.BigEndian, &hdr.BlockSize); err != nil {
		return hdr, fmt.Errorf("read block size: %w", err)
	}
	if hdr.BlockSize < MinBlockSize || hdr.BlockSize > MaxBlockSize {
		return hdr, fmt.Errorf("%w: block size %d", ErrInvalidFormat, hdr.BlockSize)
	}
	return hdr, nil
}

func readName(br *bufio.Reader) (string, error) {
	n, err := br.ReadByte()
	if err != nil {
		return "", err
	}
	name := make([]byte, n)
	if _, err := io.ReadFull(br, name); err != nil {
		return "", err
	}
	return string(name), nil
}

// Header returns the container header.
func (r *Reader) Header() Header {
	return r.header
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.eof {
			return 0, io.EOF
		}
		if err := r.nextBlock(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// Close releases the entropy decoder.
func (r *Reader) Close() error {
	r.codec.Close()
	return nil
}

func (r *Reader) nextBlock() error {
	var frame [9]byte
	if _, err := io.ReadFull(r.br, frame[:4]); err != nil {
		return fmt.Errorf("read block %d length: %w", r.blockID, unexpected(err))
	}
	stored := binary.BigEndian.Uint32(frame[:4])
	if stored == 0 {
		r.eof = true
		return nil
	}
	if _, err := io.ReadFull(r.br, frame[4:9]); err != nil {
		return fmt.Errorf("read block %d frame: %w", r.blockID, unexpected(err))
	}
	size := binary.BigEndian.Uint32(frame[4:8])
	mode := frame[8]
	if size == 0 || size > r.header.BlockSize {
		return fmt.Errorf("%w: block %d size %d", ErrInvalidFormat, r.blockID, size)
	}
	if mode == modeStored && stored != size {
		return fmt.Errorf("%w: stored block %d length %d, expected %d", ErrInvalidFormat, r.blockID, stored, size)
	}
	if mode != modeStored && mode != modeCoded {
		return fmt.Errorf("%w: block %d mode %d", ErrInvalidFormat, r.blockID, mode)
	}
	if stored > size+size/2+1024 {
		return fmt.Errorf("%w: block %d payload %d too large", ErrInvalidFormat, r.blockID, stored)
	}

	var hash uint64
	if r.header.Checksum {
		if err := binary.Read(r.br, binary.BigEndian, &hash); err != nil {
			return fmt.Errorf("read block %d checksum: %w", r.blockID, unexpected(err))
		}
	}

	if cap(r.payload) < int(stored) {
		r.payload = make([]byte, stored)
	}
	r.payload = r.payload[:stored]
	if _, err := io.ReadFull(r.br, r.payload); err != nil {
		return fmt.Errorf("read block %d payload: %w", r.blockID, unexpected(err))
	}

	if cap(r.block) < int(size) {
		r.block = make([]byte, size)
	}
	r.block = r.block[:size]
	if mode == modeStored {
		copy(r.block, r.payload)
	} else if err := r.codec.Decode(r.block, r.payload); err != nil {
		return fmt.Errorf("decode block %d: %w", r.blockID, err)
	}
	r.pipeline.inverse(r.block)

	if r.header.Checksum && xxhash.Sum64(r.block) != hash {
		return fmt.Errorf("%w: block %d", ErrChecksum, r.blockID)
	}
	r.pending = r.block
	r.blockID++
	return nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
