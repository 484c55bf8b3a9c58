package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bkz/pkg/codec"
	"bkz/pkg/config"
	"bkz/pkg/core"
	"bkz/pkg/journal"
	"bkz/pkg/logging"

	"github.com/fatih/color"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(int(core.CodeMissingParam))
	}

	operation := os.Args[1]
	switch operation {
	case "compress":
		os.Exit(handleCompress(os.Args[2:]))
	case "history":
		if err := handleHistory(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(int(core.CodeOpenFile))
		}
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintln(os.Stderr, "Invalid operation:", operation)
		printUsage()
		os.Exit(int(core.CodeInvalidParam))
	}
}

// printUsage prints the command-line usage information
func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  bkz compress -i input [-o output] [-l level | -c codec -t transform] [-b size] [-j jobs] [-x] [-f] [-v level]")
	fmt.Println("  bkz history [-journal path] [-run id]")
	fmt.Println()
	fmt.Println("Input may be a file, a directory or STDIN. Output may be a file, a directory,")
	fmt.Println("NONE or STDOUT; when omitted each input gets a .bkz container next to it.")
	fmt.Println("Levels: 0=NONE/NONE 1=NONE/LZ4 2=NONE/S2 3=DELTA/SNAPPY 4=MTF/ZSTD 5=DELTA+MTF/ZSTD")
}

type compressFlags struct {
	input, output          string
	blockSize              string
	codecName, transform   string
	level, jobs, verbosity int
	checksum, overwrite    bool
	configPath, journal    string
}

func parseCompressFlags(args []string) (*compressFlags, map[string]bool, error) {
	var f compressFlags
	fs := flag.NewFlagSet("compress", flag.ContinueOnError)
	fs.StringVar(&f.input, "i", "", "input file, directory or STDIN")
	fs.StringVar(&f.output, "o", "", "output file, directory, NONE or STDOUT")
	fs.StringVar(&f.blockSize, "b", "", "block size, with optional k, m or g suffix")
	fs.StringVar(&f.codecName, "c", "", "entropy codec: "+fmt.Sprint(codec.CodecNames()))
	fs.StringVar(&f.transform, "t", "", "transforms joined by '+': "+fmt.Sprint(codec.TransformNames()))
	fs.IntVar(&f.level, "l", -1, "compression level [0..5], overrides -c and -t")
	fs.IntVar(&f.jobs, "j", 0, "concurrent jobs, 0 uses half the CPUs")
	fs.IntVar(&f.verbosity, "v", 1, "verbosity [0..5]")
	fs.BoolVar(&f.checksum, "x", false, "store a checksum per block")
	fs.BoolVar(&f.overwrite, "f", false, "overwrite existing outputs")
	fs.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&f.journal, "journal", "", "bbolt journal recording the run")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() > 0 && f.input == "" {
		f.input = fs.Arg(0)
	}
	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return &f, set, nil
}

// handleCompress runs the compress operation and returns the exit status
func handleCompress(args []string) int {
	f, set, err := parseCompressFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return int(core.OK)
		}
		return int(core.CodeInvalidParam)
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return int(core.CodeInvalidParam)
	}
	code, err := applyFlags(cfg, f, set)
	if err == nil {
		if err = cfg.Validate(); err != nil {
			code = core.CodeInvalidParam
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return int(code)
	}

	cc := cfg.Resolve()
	log, err := logging.Setup(cfg.Env, cc.Verbosity, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return int(core.CodeInvalidParam)
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := core.NewCompressor(core.Request{
		InputName:  f.input,
		OutputName: f.output,
		Codec:      cc.Codec,
		Transform:  cc.Transform,
		BlockSize:  cc.BlockSize,
		Checksum:   cc.Checksum,
		Overwrite:  cc.Overwrite,
		Jobs:       cc.Jobs,
		Verbosity:  cc.Verbosity,
	},
		core.WithLogger(log),
		core.WithFatalHandler(func(err error) {
			log.Error("fatal error, could not flush compressed output", slog.Any("err", err))
			os.Exit(int(core.CodeWriteFile))
		}),
	)

	summary, runErr := c.Run(ctx)

	if cfg.Journal.Path != "" && summary.RunID != "" {
		if err := record(cfg.Journal.Path, summary); err != nil {
			log.Warn("failed to record run", slog.String("journal", cfg.Journal.Path), slog.Any("err", err))
		} else {
			log.Debug("run recorded", slog.String("run", summary.RunID), slog.String("journal", cfg.Journal.Path))
		}
	}

	if runErr != nil {
		if ctx.Err() != nil && core.CodeOf(runErr) == core.CodeUnknown {
			log.Warn("compression interrupted")
		}
		return int(core.CodeOf(runErr))
	}
	return int(core.OK)
}

// applyFlags overrides the loaded configuration with the flags that were set
// on the command line, and checks the parameters that map to dedicated codes.
func applyFlags(cfg *config.Config, f *compressFlags, set map[string]bool) (core.Code, error) {
	if f.input == "" {
		return core.CodeMissingParam, errors.New("missing input (-i)")
	}

	cc := &cfg.Compression
	if set["b"] {
		size, err := config.ParseSize(f.blockSize)
		if err != nil {
			return core.CodeBlockSize, err
		}
		cc.BlockSize = size
	}
	if cc.BlockSize < codec.MinBlockSize || cc.BlockSize > codec.MaxBlockSize {
		return core.CodeBlockSize, fmt.Errorf("block size %d not in [%d..%d]", cc.BlockSize, codec.MinBlockSize, codec.MaxBlockSize)
	}
	if set["c"] {
		cc.Codec = f.codecName
	}
	if set["t"] {
		cc.Transform = f.transform
	}
	if set["l"] {
		cc.Level = f.level
	}
	if set["j"] {
		cc.Jobs = f.jobs
	}
	if set["v"] {
		cc.Verbosity = f.verbosity
	}
	if set["x"] {
		cc.Checksum = f.checksum
	}
	if set["f"] {
		cc.Overwrite = f.overwrite
	}
	if set["journal"] {
		cfg.Journal.Path = f.journal
	}

	if cc.Level == -1 {
		if _, err := (codec.Options{BlockSize: cc.BlockSize, Jobs: 1, Codec: cc.Codec, Transform: cc.Transform}).Validate(); err != nil {
			return core.CodeInvalidCodec, err
		}
	}
	return core.OK, nil
}

func record(path string, summary core.Summary) error {
	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()
	return j.Record(summary)
}

// handleHistory prints the runs recorded in a journal
func handleHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	path := fs.String("journal", "", "bbolt journal")
	runID := fs.String("run", "", "show the files of one run")
	configPath := fs.String("config", "", "YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		*path = cfg.Journal.Path
	}
	if *path == "" {
		return errors.New("no journal configured (-journal or BKZ_JOURNAL)")
	}

	j, err := journal.Open(*path)
	if err != nil {
		return err
	}
	defer j.Close()

	if *runID != "" {
		files, err := j.Files(*runID)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Printf("%4d %s %s -> %s (%d => %d bytes, %d jobs)\n",
				f.Index, codeColor(f.Code), f.Input, f.Output, f.Read, f.Written, f.Jobs)
		}
		return nil
	}

	runs, err := j.Runs()
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%s %s %s files=%d read=%d written=%d ratio=%.3f elapsed=%s\n",
			r.ID, r.Start.Format(time.DateTime), codeColor(r.Code), r.Files, r.Read, r.Written, r.Ratio,
			time.Duration(r.ElapsedMS)*time.Millisecond)
	}
	return nil
}

func codeColor(code string) string {
	if code == core.OK.String() {
		return color.GreenString(code)
	}
	return color.RedString(code)
}
