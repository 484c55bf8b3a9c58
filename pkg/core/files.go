package core

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bkz/pkg/codec"
)

// Reserved path tokens, matched case-insensitively on the whole name.
const (
	NullOutput   = "NONE"
	StdoutOutput = "STDOUT"
	StdinInput   = "STDIN"
)

func hasToken(name, token string) bool {
	return strings.EqualFold(strings.TrimSpace(name), token)
}

// isSpecialOutput reports whether name is a reserved output rather than a path.
func isSpecialOutput(name string) bool {
	return hasToken(name, NullOutput) || hasToken(name, StdoutOutput)
}

// Entry is one input file with its path relative to the input root.
type Entry struct {
	RelPath  string // Relative path under the input directory, empty for a single file
	FilePath string // Path on disk, or the STDIN token
}

// createFileList resolves input to a list of regular files sorted by path.
func createFileList(input string) ([]Entry, bool, error) {
	if hasToken(input, StdinInput) {
		return []Entry{{FilePath: input}}, false, nil
	}

	info, err := os.Stat(input)
	if err != nil {
		return nil, false, fmt.Errorf("cannot access input file %q: %w", input, err)
	}
	if !info.IsDir() {
		return []Entry{{FilePath: input}}, false, nil
	}

	entries, err := collectDirEntries(input)
	if err != nil {
		return nil, true, err
	}
	return entries, true, nil
}

// collectDirEntries gathers all regular files under root with relative paths
func collectDirEntries(root string) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", path, err)
		}
		entries = append(entries, Entry{RelPath: relPath, FilePath: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory %s: %w", root, err)
	}

	// Same order on every run, the job allocation depends on it.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FilePath < entries[j].FilePath
	})
	return entries, nil
}

// calculateTotalSize sums the sizes of the entries that can be stat'ed.
func calculateTotalSize(entries []Entry) uint64 {
	var totalSize uint64
	for _, entry := range entries {
		info, err := os.Stat(entry.FilePath)
		if err != nil {
			continue
		}
		totalSize += uint64(info.Size())
	}
	return totalSize
}

// outputPath determines the container path for one entry.
func outputPath(entry Entry, output string, inputIsDir bool) string {
	switch {
	case output == "":
		return entry.FilePath + codec.Extension
	case inputIsDir && !isSpecialOutput(output):
		return filepath.Join(output, entry.RelPath) + codec.Extension
	default:
		return output
	}
}

// samePaths reports whether a and b name the same file.
func samePaths(a, b string) bool {
	if a == b {
		return true
	}
	infoA, errA := os.Stat(a)
	infoB, errB := os.Stat(b)
	if errA == nil && errB == nil {
		return os.SameFile(infoA, infoB)
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
