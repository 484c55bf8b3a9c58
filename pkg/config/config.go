package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"bkz/pkg/codec"

	"github.com/ilyakaznacheev/cleanenv"
)

// Environments understood by the logging setup
const (
	EnvLocal = "local"
	EnvDebug = "debug"
	EnvProd  = "prod"
)

const (
	MaxLevel     = 5
	MaxVerbosity = 5
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Env         string      `yaml:"env" env:"BKZ_ENV" env-default:"local"`
	Compression Compression `yaml:"compression"`
	Journal     Journal     `yaml:"journal"`
}

type Compression struct {
	BlockSize uint   `yaml:"block_size" env:"BKZ_BLOCK_SIZE" env-default:"4194304"`
	Codec     string `yaml:"codec" env:"BKZ_CODEC" env-default:"LZ4"`
	Transform string `yaml:"transform" env:"BKZ_TRANSFORM" env-default:"NONE"`
	Level     int    `yaml:"level" env:"BKZ_LEVEL" env-default:"-1"` // -1 keeps codec and transform
	Checksum  bool   `yaml:"checksum" env:"BKZ_CHECKSUM" env-default:"false"`
	Overwrite bool   `yaml:"overwrite" env:"BKZ_OVERWRITE" env-default:"false"`
	Jobs      int    `yaml:"jobs" env:"BKZ_JOBS" env-default:"0"` // 0 means half the CPUs
	Verbosity int    `yaml:"verbosity" env:"BKZ_VERBOSITY" env-default:"1"`
}

type Journal struct {
	Path string `yaml:"path" env:"BKZ_JOURNAL"`
}

// Level is a preset transform and entropy codec pair.
type Level struct {
	Transform string
	Codec     string
}

var levels = [MaxLevel + 1]Level{
	{Transform: "NONE", Codec: "NONE"},
	{Transform: "NONE", Codec: "LZ4"},
	{Transform: "NONE", Codec: "S2"},
	{Transform: "DELTA", Codec: "SNAPPY"},
	{Transform: "MTF", Codec: "ZSTD"},
	{Transform: "DELTA+MTF", Codec: "ZSTD"},
}

// LevelPreset returns the pair selected by a compression level.
func LevelPreset(level int) (Level, error) {
	if level < 0 || level > MaxLevel {
		return Level{}, fmt.Errorf("%w: compression level %d not in [0..%d]", ErrInvalid, level, MaxLevel)
	}
	return levels[level], nil
}

// Load reads the configuration from the YAML file at path, when path is not
// empty, then from the environment.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
		return &cfg, nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cannot find config file by path %s: %w", path, err)
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return &cfg, nil
}

// Validate checks the bounds of every field.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvLocal, EnvDebug, EnvProd:
	default:
		return fmt.Errorf("%w: unknown env %q", ErrInvalid, c.Env)
	}

	cc := c.Compression
	if cc.Level != -1 {
		if _, err := LevelPreset(cc.Level); err != nil {
			return err
		}
	}
	if cc.Jobs < 0 || cc.Jobs > codec.MaxJobs {
		return fmt.Errorf("%w: jobs %d not in [0..%d]", ErrInvalid, cc.Jobs, codec.MaxJobs)
	}
	if cc.Verbosity < 0 || cc.Verbosity > MaxVerbosity {
		return fmt.Errorf("%w: verbosity %d not in [0..%d]", ErrInvalid, cc.Verbosity, MaxVerbosity)
	}

	resolved := c.Resolve()
	if _, err := (codec.Options{
		BlockSize: resolved.BlockSize,
		Jobs:      1,
		Codec:     resolved.Codec,
		Transform: resolved.Transform,
	}).Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Resolve applies the compression level and the default job count.
func (c *Config) Resolve() Compression {
	cc := c.Compression
	if preset, err := LevelPreset(cc.Level); err == nil {
		cc.Codec = preset.Codec
		cc.Transform = preset.Transform
	}
	if cc.Jobs == 0 {
		cc.Jobs = DefaultJobs()
	}
	return cc
}

// DefaultJobs is half the logical CPUs, at least 1.
func DefaultJobs() int {
	return min(max(runtime.NumCPU()/2, 1), codec.MaxJobs)
}

// ParseSize parses a byte count with an optional k, m or g suffix (powers of 1024).
func ParseSize(s string) (uint, error) {
	str := strings.ToLower(strings.TrimSpace(s))
	mult := uint64(1)
	switch {
	case strings.HasSuffix(str, "k"):
		mult = 1 << 10
	case strings.HasSuffix(str, "m"):
		mult = 1 << 20
	case strings.HasSuffix(str, "g"):
		mult = 1 << 30
	}
	if mult > 1 {
		str = str[:len(str)-1]
	}
	n, err := strconv.ParseUint(str, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid size %q", ErrInvalid, s)
	}
	if n*mult > codec.MaxBlockSize {
		return 0, fmt.Errorf("%w: size %q too large", ErrInvalid, s)
	}
	return uint(n * mult), nil
}
