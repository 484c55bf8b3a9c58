package core

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"bkz/pkg/codec"
	"bkz/pkg/event"
)

const defaultBufferSize = 64 * 1024

// TaskConfig describes one file to compress.
type TaskConfig struct {
	Input     string
	Output    string
	Codec     string
	Transform string
	BlockSize uint
	Checksum  bool
	Overwrite bool
	Jobs      int
	Verbosity int
	Listeners []event.Listener
	Logger    *slog.Logger
	Stdin     io.Reader // Used when Input is the STDIN token
	Stdout    io.Writer // Used when Output is the STDOUT token
}

// FileTask compresses one input into one container. A task runs at most once.
type FileTask struct {
	cfg    TaskConfig
	log    *slog.Logger
	input  io.ReadCloser
	output io.WriteCloser
	sink   *codec.Writer

	ran          atomic.Bool
	executed     bool
	read         uint64
	result       Result
	inputClosed  bool
	outputClosed bool
	ended        bool
}

// NewFileTask creates a task; nothing is opened until Run.
func NewFileTask(cfg TaskConfig) *FileTask {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	return &FileTask{
		cfg: cfg,
		log: cfg.Logger.With(slog.String("input", cfg.Input), slog.String("output", cfg.Output)),
	}
}

// Config returns the task configuration.
func (t *FileTask) Config() TaskConfig {
	return t.cfg
}

// Result returns the outcome of Run and whether Run was called.
func (t *FileTask) Result() (Result, bool) {
	return t.result, t.executed
}

// Run compresses the input. Every failure is reported through the result
// code; Run never panics.
func (t *FileTask) Run() (res Result) {
	if !t.ran.CompareAndSwap(false, true) {
		t.log.Error("task already executed")
		return Result{Code: CodeUnknown}
	}
	t.executed = true
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("an unexpected condition happened", slog.Any("panic", r))
			res = Result{Code: CodeUnknown, Read: t.read, Written: t.written()}
		}
		t.Dispose()
		t.result = res
	}()
	return t.run()
}

func (t *FileTask) run() Result {
	t.log.Debug("task configured",
		slog.Int("jobs", t.cfg.Jobs),
		slog.Uint64("block_size", uint64(t.cfg.BlockSize)),
		slog.String("codec", t.cfg.Codec),
		slog.String("transform", t.cfg.Transform),
		slog.Bool("checksum", t.cfg.Checksum))

	if !isSpecialOutput(t.cfg.Output) {
		if code, err := t.checkOutput(); code != OK {
			return t.fail(code, err, 0)
		}
	}

	opts, err := codec.Options{
		BlockSize: t.cfg.BlockSize,
		Checksum:  t.cfg.Checksum,
		Jobs:      uint(min(max(t.cfg.Jobs, 1), codec.MaxJobs)),
		Codec:     t.cfg.Codec,
		Transform: t.cfg.Transform,
	}.Validate()
	if err != nil {
		return t.fail(CodeCreateCompressor, fmt.Errorf("cannot create compressed stream: %w", err), 0)
	}

	if err := t.openInput(); err != nil {
		return t.fail(CodeOpenFile, err, 0)
	}
	if err := t.openOutput(); err != nil {
		return t.fail(CodeCreateFile, err, 0)
	}
	if t.sink, err = codec.NewWriter(t.output, opts); err != nil {
		return t.fail(CodeCreateCompressor, fmt.Errorf("cannot create compressed stream: %w", err), 0)
	}
	for _, l := range t.cfg.Listeners {
		t.sink.AddListener(l)
	}

	if t.cfg.Verbosity > 1 {
		t.log.Info("encoding")
	}
	t.notify(event.CompressionStart, 0)

	start := time.Now()
	buf := make([]byte, defaultBufferSize)
	for {
		n, err := t.input.Read(buf)
		if n > 0 {
			t.read += uint64(n)
			if _, werr := t.sink.Write(buf[:n]); werr != nil {
				return t.fail(CodeProcessBlock, fmt.Errorf("failed to compress block: %w", werr), t.read)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return t.fail(CodeReadFile, fmt.Errorf("failed to read block from file: %w", err), t.read)
		}
	}
	read := t.read

	// Close streams to ensure all data are flushed
	if err := t.Dispose(); err != nil {
		t.log.Error("compression failure", slog.String("code", CodeWriteFile.String()), slog.Any("err", err))
		return Result{Code: CodeWriteFile, Read: read, Written: t.written()}
	}
	written := t.written()
	elapsed := time.Since(start)

	if read == 0 {
		if t.cfg.Verbosity > 0 {
			t.log.Info("input file is empty, nothing to do")
		}
	} else if t.cfg.Verbosity > 0 {
		attrs := []any{
			slog.Uint64("read", read),
			slog.Uint64("written", written),
			slog.Int64("elapsed_ms", elapsed.Milliseconds()),
		}
		if t.cfg.Verbosity > 1 {
			attrs = append(attrs, slog.Float64("ratio", float64(written)/float64(read)))
			if ms := elapsed.Milliseconds(); ms > 0 {
				attrs = append(attrs, slog.Uint64("throughput_kbs", read*1000/1024/uint64(ms)))
			}
		}
		t.log.Info("encoded", attrs...)
	}

	t.notify(event.CompressionEnd, written)
	return Result{Code: OK, Read: read, Written: written}
}

// checkOutput validates a regular output path before anything is created.
func (t *FileTask) checkOutput() (Code, error) {
	if samePaths(t.cfg.Input, t.cfg.Output) {
		return CodeCreateFile, errors.New("the input and output files must be different")
	}
	info, err := os.Stat(t.cfg.Output)
	if err == nil {
		if info.IsDir() {
			return CodeOutputIsDir, errors.New("the output file is a directory")
		}
		if !t.cfg.Overwrite {
			return CodeOverwriteFile, errors.New("the output file exists and overwrite is disabled")
		}
	}
	return OK, nil
}

func (t *FileTask) openInput() error {
	if hasToken(t.cfg.Input, StdinInput) {
		t.input = io.NopCloser(t.cfg.Stdin)
		return nil
	}
	f, err := os.Open(t.cfg.Input)
	if err != nil {
		return fmt.Errorf("cannot open input file: %w", err)
	}
	t.input = f
	return nil
}

func (t *FileTask) openOutput() error {
	switch {
	case hasToken(t.cfg.Output, NullOutput):
		t.output = nopWriteCloser{io.Discard}
	case hasToken(t.cfg.Output, StdoutOutput):
		t.output = nopWriteCloser{t.cfg.Stdout}
	default:
		if err := os.MkdirAll(filepath.Dir(t.cfg.Output), 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		f, err := os.Create(t.cfg.Output)
		if err != nil {
			return fmt.Errorf("cannot open output file for writing: %w", err)
		}
		t.output = f
	}
	return nil
}

// Dispose closes the compressed stream (flushing it) and the input. It is
// idempotent and only the first close of each resource can report an error.
func (t *FileTask) Dispose() error {
	var err error
	if !t.outputClosed {
		switch {
		case t.sink != nil:
			t.outputClosed = true
			err = t.sink.Close()
		case t.output != nil:
			t.outputClosed = true
			err = t.output.Close()
		}
	}
	if t.input != nil && !t.inputClosed {
		t.inputClosed = true
		t.input.Close()
	}
	return err
}

func (t *FileTask) written() uint64 {
	if t.sink == nil {
		return 0
	}
	return t.sink.Written()
}

func (t *FileTask) fail(code Code, err error, read uint64) Result {
	t.log.Error("task failed", slog.String("code", code.String()), slog.Any("err", err))
	return Result{Code: code, Read: read, Written: t.written()}
}

func (t *FileTask) notify(typ event.Type, written uint64) {
	if len(t.cfg.Listeners) == 0 {
		return
	}
	if typ == event.CompressionEnd {
		if t.ended {
			return
		}
		t.ended = true
	}
	evt := event.New(typ, -1, int64(written))
	evt.Source = t.cfg.Input
	event.Notify(t.cfg.Listeners, evt)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
