package journal

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"bkz/pkg/core"

	"github.com/google/uuid"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func summary(code core.Code, files ...core.FileResult) core.Summary {
	s := core.Summary{
		RunID:   uuid.Must(uuid.NewV7()).String(),
		Code:    code,
		Files:   files,
		Start:   time.Now().Truncate(time.Millisecond),
		Elapsed: 1500 * time.Millisecond,
	}
	for _, f := range files {
		s.Read += f.Read
		s.Written += f.Written
	}
	return s
}

func TestRecordAndRead(t *testing.T) {
	j := openTestJournal(t)
	s := summary(core.CodeOverwriteFile,
		core.FileResult{Input: "in/a", Output: "out/a.bkz", Jobs: 1, Executed: true, Result: core.Result{Read: 100, Written: 40}},
		core.FileResult{Input: "in/b", Output: "out/b.bkz", Jobs: 1, Executed: true, Result: core.Result{Code: core.CodeOverwriteFile}},
		core.FileResult{Input: "in/c", Output: "out/c.bkz", Jobs: 1},
	)
	if err := j.Record(s); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	run, err := j.Run(s.RunID)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if run.Code != core.CodeOverwriteFile.String() || run.ExitCode != 7 || run.Files != 3 ||
		run.Read != 100 || run.Written != 40 || run.ElapsedMS != 1500 || !run.Start.Equal(s.Start) {
		t.Fatalf("unexpected run record: %+v", run)
	}

	files, err := j.Files(s.RunID)
	if err != nil {
		t.Fatalf("Files() error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected the 2 executed files, got %d", len(files))
	}
	if files[0].Input != "in/a" || files[0].Written != 40 || files[1].Index != 1 || files[1].Code != core.CodeOverwriteFile.String() {
		t.Fatalf("unexpected file records: %+v", files)
	}
}

func TestRunsInOrder(t *testing.T) {
	j := openTestJournal(t)
	var ids []string
	for i := 0; i < 3; i++ {
		s := summary(core.OK)
		ids = append(ids, s.RunID)
		if err := j.Record(s); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := j.Runs()
	if err != nil {
		t.Fatalf("Runs() error: %v", err)
	}
	if len(runs) != len(ids) {
		t.Fatalf("got %d runs, want %d", len(runs), len(ids))
	}
	for i, run := range runs {
		if run.ID != ids[i] {
			t.Fatalf("run %d = %s, want %s", i, run.ID, ids[i])
		}
	}
}

func TestFilesDoNotLeakAcrossRuns(t *testing.T) {
	j := openTestJournal(t)
	first := summary(core.OK, core.FileResult{Input: "x", Executed: true})
	second := summary(core.OK, core.FileResult{Input: "y", Executed: true}, core.FileResult{Input: "z", Executed: true})
	for _, s := range []core.Summary{first, second} {
		if err := j.Record(s); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}
	files, err := j.Files(first.RunID)
	if err != nil || len(files) != 1 || files[0].Input != "x" {
		t.Fatalf("Files(first) = %+v, %v", files, err)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	s := summary(core.OK)
	if err := j.Record(s); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	j, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer j.Close()
	if _, err := j.Run(s.RunID); err != nil {
		t.Fatalf("run lost after reopen: %v", err)
	}
}

func TestRecordErrors(t *testing.T) {
	j := openTestJournal(t)
	if err := j.Record(core.Summary{}); err == nil {
		t.Fatalf("expected an error for a run without id")
	}
	if _, err := j.Run("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Run(missing) = %v, want ErrNotFound", err)
	}
}
