package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"bkz/pkg/event"
	"bkz/pkg/progress"

	"github.com/google/uuid"
)

// Request is the resolved configuration of a compression run.
type Request struct {
	InputName  string
	OutputName string
	Codec      string
	Transform  string
	BlockSize  uint
	Checksum   bool
	Overwrite  bool
	Jobs       int
	Verbosity  int
}

// FileResult is the outcome of one file of a run.
type FileResult struct {
	Input    string
	Output   string
	Jobs     int
	Executed bool
	Result
}

// Summary aggregates a run. Read and Written only cover tasks that executed;
// Code is the first failure observed.
type Summary struct {
	RunID   string
	Code    Code
	Read    uint64
	Written uint64
	Files   []FileResult
	Start   time.Time
	Elapsed time.Duration
}

// Ratio returns written/read, or 0 when nothing was read.
func (s Summary) Ratio() float64 {
	if s.Read == 0 {
		return 0
	}
	return float64(s.Written) / float64(s.Read)
}

// Option customizes a Compressor.
type Option func(*Compressor)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compressor) { c.logger = l }
}

// WithStdio replaces the process standard input and output used for the
// STDIN and STDOUT tokens.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(c *Compressor) {
		c.stdin = in
		c.stdout = out
	}
}

// WithProgressOutput sets where the progress tracker prints (verbosity > 2).
func WithProgressOutput(w io.Writer) Option {
	return func(c *Compressor) { c.progressOut = w }
}

// WithFatalHandler registers fn to be called when a container could not be
// flushed (CodeWriteFile). A CLI typically exits the process from it.
func WithFatalHandler(fn func(error)) Option {
	return func(c *Compressor) { c.onFatal = fn }
}

// Compressor orchestrates the compression of a file or a directory tree.
type Compressor struct {
	req         Request
	listeners   []event.Listener
	logger      *slog.Logger
	stdin       io.Reader
	stdout      io.Writer
	progressOut io.Writer
	onFatal     func(error)
}

// NewCompressor creates a compressor for req. A job budget below 1 is raised to 1.
func NewCompressor(req Request, opts ...Option) *Compressor {
	if req.Jobs < 1 {
		req.Jobs = 1
	}
	c := &Compressor{
		req:         req,
		logger:      slog.Default(),
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		progressOut: os.Stderr,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddListener registers a listener; it must be called before Run.
func (c *Compressor) AddListener(l event.Listener) bool {
	if l == nil {
		return false
	}
	c.listeners = append(c.listeners, l)
	return true
}

// RemoveListener unregisters l.
func (c *Compressor) RemoveListener(l event.Listener) bool {
	for i, registered := range c.listeners {
		if registered == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Run compresses every input file. Cancelling ctx stops new files from being
// started; files already being compressed run to completion.
func (c *Compressor) Run(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: newRunID(), Start: time.Now()}
	log := c.logger.With(slog.String("run", summary.RunID))
	req := c.req

	entries, inputIsDir, err := createFileList(req.InputName)
	if err == nil && len(entries) == 0 {
		err = fmt.Errorf("cannot access input file %q: no file to compress", req.InputName)
	}
	if err != nil {
		return c.abort(log, summary, CodeOpenFile, req.InputName, err)
	}

	nbFiles := len(entries)
	if req.Verbosity > 0 {
		log.Info("files to compress", slog.Int("count", nbFiles))
	}
	log.Debug("settings",
		slog.Uint64("block_size", uint64(req.BlockSize)),
		slog.Int("verbosity", req.Verbosity),
		slog.Bool("overwrite", req.Overwrite),
		slog.Bool("checksum", req.Checksum),
		slog.String("transform", req.Transform),
		slog.String("codec", req.Codec),
		slog.Int("jobs", req.Jobs))

	if code, err := c.checkTopology(req, inputIsDir, nbFiles); code != OK {
		return c.abort(log, summary, code, req.OutputName, err)
	}

	// Limit verbosity level when files are processed concurrently
	if req.Jobs > 1 && nbFiles > 1 && req.Verbosity > 1 {
		log.Warn("limiting verbosity to 1 due to concurrent processing of input files")
		req.Verbosity = 1
	}

	listeners := append([]event.Listener(nil), c.listeners...)
	if req.Verbosity > 2 {
		tracker := progress.NewTracker(c.progressOut, req.Verbosity)
		tracker.SetTotal(calculateTotalSize(entries))
		tracker.Start()
		defer tracker.Stop()
		listeners = append(listeners, tracker)
	}

	jobsPerTask := []int{req.Jobs}
	if nbFiles > 1 {
		jobsPerTask = JobsPerTask(req.Jobs, nbFiles)
	}
	tasks := make([]*FileTask, nbFiles)
	for i, entry := range entries {
		tasks[i] = NewFileTask(TaskConfig{
			Input:     entry.FilePath,
			Output:    outputPath(entry, req.OutputName, inputIsDir),
			Codec:     req.Codec,
			Transform: req.Transform,
			BlockSize: req.BlockSize,
			Checksum:  req.Checksum,
			Overwrite: req.Overwrite,
			Jobs:      jobsPerTask[i],
			Verbosity: req.Verbosity,
			Listeners: listeners,
			Logger:    log,
			Stdin:     c.stdin,
			Stdout:    c.stdout,
		})
	}

	var total Result
	switch {
	case nbFiles == 1:
		total = tasks[0].Run()
	case req.Jobs == 1:
		total = runSequential(ctx, tasks)
	default:
		runners := make([]Runner, len(tasks))
		for i, task := range tasks {
			runners[i] = task
		}
		total = runConcurrent(ctx, NewBoundedQueue(runners), req.Jobs)
	}

	summary.Code = total.Code
	summary.Read = total.Read
	summary.Written = total.Written
	summary.Elapsed = time.Since(summary.Start)
	summary.Files = make([]FileResult, nbFiles)
	var failed string
	for i, task := range tasks {
		res, executed := task.Result()
		cfg := task.Config()
		summary.Files[i] = FileResult{Input: cfg.Input, Output: cfg.Output, Jobs: cfg.Jobs, Executed: executed, Result: res}
		if failed == "" && executed && res.Code == total.Code && res.Code != OK {
			failed = cfg.Input
		}
	}

	if nbFiles > 1 && req.Verbosity > 0 {
		attrs := []any{
			slog.Int64("total_ms", summary.Elapsed.Milliseconds()),
			slog.Uint64("total_written", summary.Written),
		}
		if summary.Read > 0 {
			attrs = append(attrs, slog.Float64("ratio", summary.Ratio()))
		}
		if ms := summary.Elapsed.Milliseconds(); ms > 0 {
			attrs = append(attrs, slog.Uint64("throughput_kbs", summary.Read*1000/1024/uint64(ms)))
		}
		log.Info("total encoding", attrs...)
	}

	if summary.Code != OK {
		err := &Error{Code: summary.Code, Path: failed}
		if summary.Code.Fatal() && c.onFatal != nil {
			c.onFatal(err)
		}
		return summary, err
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("compression interrupted: %w", err)
	}
	return summary, nil
}

// newRunID returns a time ordered id so that run histories sort chronologically.
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// checkTopology validates the output against the shape of the input.
func (c *Compressor) checkTopology(req Request, inputIsDir bool, nbFiles int) (Code, error) {
	output := req.OutputName
	if hasToken(output, StdoutOutput) && nbFiles > 1 {
		return CodeCreateFile, errors.New("cannot output to STDOUT with multiple input files")
	}
	if output == "" || isSpecialOutput(output) {
		return OK, nil
	}

	info, err := os.Stat(output)
	if inputIsDir {
		if err != nil {
			return CodeOpenFile, fmt.Errorf("output must be an existing directory (or 'NONE'): %w", err)
		}
		if !info.IsDir() {
			return CodeCreateFile, errors.New("output must be a directory (or 'NONE')")
		}
		return OK, nil
	}
	if err == nil && info.IsDir() {
		return CodeCreateFile, errors.New("output must be a file (or 'NONE')")
	}
	return OK, nil
}

func (c *Compressor) abort(log *slog.Logger, summary Summary, code Code, path string, err error) (Summary, error) {
	log.Error("run aborted", slog.String("code", code.String()), slog.Any("err", err))
	summary.Code = code
	summary.Elapsed = time.Since(summary.Start)
	return summary, &Error{Code: code, Path: path, Err: err}
}

// runSequential runs tasks in order and stops at the first failure.
func runSequential(ctx context.Context, tasks []*FileTask) Result {
	var total Result
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		res := task.Run()
		total.Code = res.Code
		total.Read += res.Read
		total.Written += res.Written
		if res.Code != OK {
			break
		}
	}
	return total
}

// runConcurrent starts jobs workers over a shared queue. A worker that stops
// on a failure aborts the queue; tasks already claimed still finish and count
// in the totals. The code reported is the first failure received.
func runConcurrent(ctx context.Context, queue *BoundedQueue[Runner], jobs int) Result {
	if ctx.Err() != nil {
		queue.Abort()
	}
	stop := context.AfterFunc(ctx, queue.Abort)
	defer stop()

	results := make(chan Result, jobs)
	for i := 0; i < jobs; i++ {
		worker := NewWorker(queue)
		go func() {
			res := worker.Run()
			if res.Code != OK {
				// Exit early by telling the other workers that the queue is empty
				queue.Abort()
			}
			results <- res
		}()
	}

	var total Result
	for i := 0; i < jobs; i++ {
		res := <-results
		total.Read += res.Read
		total.Written += res.Written
		if res.Code != OK && total.Code == OK {
			total.Code = res.Code
		}
	}
	return total
}
