// Package journal keeps a history of compression runs in a bbolt database.
package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bkz/pkg/core"

	"go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

const (
	RunsBucketName  = "runs"
	FilesBucketName = "files"
)

var ErrNotFound = errors.New("run not found")

// RunRecord is the stored form of a core.Summary.
type RunRecord struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	ExitCode  int       `json:"exit_code"`
	Read      uint64    `json:"read"`
	Written   uint64    `json:"written"`
	Ratio     float64   `json:"ratio"`
	Files     int       `json:"files"`
	Start     time.Time `json:"start"`
	ElapsedMS int64     `json:"elapsed_ms"`
}

// FileRecord is the stored form of one executed core.FileResult.
type FileRecord struct {
	RunID   string `json:"run_id"`
	Index   int    `json:"index"`
	Input   string `json:"input"`
	Output  string `json:"output"`
	Jobs    int    `json:"jobs"`
	Code    string `json:"code"`
	Read    uint64 `json:"read"`
	Written uint64 `json:"written"`
}

type Journal struct {
	db   *bbolt.DB
	path string
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	db, err := bbolt.Open(path, 0o666, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{RunsBucketName, FilesBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise journal %s: %w", path, err)
	}

	slog.Debug("journal opened", slog.String("path", path))
	return &Journal{db: db, path: path}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func fileKey(runID string, index int) []byte {
	return []byte(fmt.Sprintf("%s/%06d", runID, index))
}

// Record stores the run and every file that was executed.
func (j *Journal) Record(s core.Summary) error {
	if s.RunID == "" {
		return errors.New("cannot record a run without an id")
	}

	run := RunRecord{
		ID:        s.RunID,
		Code:      s.Code.String(),
		ExitCode:  int(s.Code),
		Read:      s.Read,
		Written:   s.Written,
		Ratio:     s.Ratio(),
		Files:     len(s.Files),
		Start:     s.Start,
		ElapsedMS: s.Elapsed.Milliseconds(),
	}
	runData, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", s.RunID, err)
	}

	err = j.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(RunsBucketName))
		files := tx.Bucket([]byte(FilesBucketName))
		if runs == nil || files == nil {
			return berrors.ErrBucketNotFound
		}
		if err := runs.Put([]byte(s.RunID), runData); err != nil {
			return err
		}

		for i, f := range s.Files {
			if !f.Executed {
				continue
			}
			data, err := json.Marshal(FileRecord{
				RunID:   s.RunID,
				Index:   i,
				Input:   f.Input,
				Output:  f.Output,
				Jobs:    f.Jobs,
				Code:    f.Code.String(),
				Read:    f.Read,
				Written: f.Written,
			})
			if err != nil {
				return fmt.Errorf("encode file %s: %w", f.Input, err)
			}
			if err := files.Put(fileKey(s.RunID, i), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", s.RunID, err)
	}
	return nil
}

// Run returns the record of one run.
func (j *Journal) Run(runID string) (RunRecord, error) {
	var run RunRecord
	err := j.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(RunsBucketName))
		if bucket == nil {
			return berrors.ErrBucketNotFound
		}
		data := bucket.Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return json.Unmarshal(data, &run)
	})
	return run, err
}

// Runs lists every run in key order, which is chronological for version 7 ids.
func (j *Journal) Runs() ([]RunRecord, error) {
	var runs []RunRecord
	err := j.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(RunsBucketName))
		if bucket == nil {
			return berrors.ErrBucketNotFound
		}
		return bucket.ForEach(func(k, v []byte) error {
			var run RunRecord
			if err := json.Unmarshal(v, &run); err != nil {
				return fmt.Errorf("decode run %s: %w", k, err)
			}
			runs = append(runs, run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// Files lists the executed files of a run in input order.
func (j *Journal) Files(runID string) ([]FileRecord, error) {
	var files []FileRecord
	prefix := []byte(runID + "/")
	err := j.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(FilesBucketName))
		if bucket == nil {
			return berrors.ErrBucketNotFound
		}
		c := bucket.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var f FileRecord
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("decode file %s: %w", k, err)
			}
			files = append(files, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
