package core

import (
	"errors"
	"fmt"
)

// Code is the result of a task or of a whole run. The values are stable and
// double as process exit statuses.
type Code int

const (
	OK                   Code = 0
	CodeMissingParam     Code = 1
	CodeBlockSize        Code = 2
	CodeInvalidCodec     Code = 3
	CodeCreateCompressor Code = 4
	CodeOutputIsDir      Code = 6
	CodeOverwriteFile    Code = 7
	CodeCreateFile       Code = 8
	CodeOpenFile         Code = 10
	CodeReadFile         Code = 11
	CodeWriteFile        Code = 12
	CodeProcessBlock     Code = 13
	CodeInvalidParam     Code = 18
	CodeUnknown          Code = 127
)

var codeNames = map[Code]string{
	OK:                   "OK",
	CodeMissingParam:     "ERR_MISSING_PARAM",
	CodeBlockSize:        "ERR_BLOCK_SIZE",
	CodeInvalidCodec:     "ERR_INVALID_CODEC",
	CodeCreateCompressor: "ERR_CREATE_COMPRESSOR",
	CodeOutputIsDir:      "ERR_OUTPUT_IS_DIR",
	CodeOverwriteFile:    "ERR_OVERWRITE_FILE",
	CodeCreateFile:       "ERR_CREATE_FILE",
	CodeOpenFile:         "ERR_OPEN_FILE",
	CodeReadFile:         "ERR_READ_FILE",
	CodeWriteFile:        "ERR_WRITE_FILE",
	CodeProcessBlock:     "ERR_PROCESS_BLOCK",
	CodeInvalidParam:     "ERR_INVALID_PARAM",
	CodeUnknown:          "ERR_UNKNOWN",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ERR_%d", int(c))
}

// Fatal reports whether the code means a container may have been left
// partially flushed.
func (c Code) Fatal() bool {
	return c == CodeWriteFile
}

// Error is returned by Compressor.Run when the run did not succeed.
type Error struct {
	Code Code
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the result code carried by err: OK for nil, CodeUnknown
// for errors that do not carry one.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
