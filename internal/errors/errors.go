// Package errors defines the failure taxonomy shared by the import pipeline.
//
// Every failure belongs to one Kind. Configuration errors stop a run before
// any remote connection is attempted, filesystem errors degrade the run, and
// remote errors abort only the import item being processed.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the run reacts to it.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindFilesystem    Kind = "filesystem"
	KindRemote        Kind = "remote"
)

// Reason narrows down a remote failure.
type Reason string

const (
	ReasonUnknown  Reason = ""
	ReasonAuth     Reason = "authentication"
	ReasonNetwork  Reason = "network"
	ReasonNotFound Reason = "not-found"
	ReasonConflict Reason = "conflict"
)

// Sentinels for errors.Is matching on the kind alone.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrFilesystem    = errors.New("filesystem error")
	ErrRemote        = errors.New("remote protocol error")
	ErrConflict      = errors.New("remote conflict")
)

// Error is a classified failure. Op names the operation that failed and Path
// the file, directory or remote path it was working on.
type Error struct {
	Kind   Kind
	Reason Reason
	Op     string
	Path   string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Reason != ReasonUnknown {
		msg += " (" + string(e.Reason) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfiguration:
		return e.Kind == KindConfiguration
	case ErrFilesystem:
		return e.Kind == KindFilesystem
	case ErrRemote:
		return e.Kind == KindRemote
	case ErrConflict:
		return e.Kind == KindRemote && e.Reason == ReasonConflict
	}
	return false
}

// Configuration returns a configuration error.
func Configuration(op string, err error) error {
	return &Error{Kind: KindConfiguration, Op: op, Err: err}
}

// Configurationf formats a configuration error message.
func Configurationf(format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Err: fmt.Errorf(format, args...)}
}

// Filesystem returns a filesystem error for path.
func Filesystem(op, path string, err error) error {
	return &Error{Kind: KindFilesystem, Op: op, Path: path, Err: err}
}

// Remote returns a remote protocol error for path.
func Remote(op, path string, reason Reason, err error) error {
	return &Error{Kind: KindRemote, Reason: reason, Op: op, Path: path, Err: err}
}

// Conflict returns a remote conflict error for path.
func Conflict(op, path string, err error) error {
	return Remote(op, path, ReasonConflict, err)
}

// KindOf reports the kind of err, or "" if err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf reports the remote reason of err, if any.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonUnknown
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsFilesystem reports whether err is a filesystem error.
func IsFilesystem(err error) bool {
	return errors.Is(err, ErrFilesystem)
}

// IsRemote reports whether err is a remote protocol error.
func IsRemote(err error) bool {
	return errors.Is(err, ErrRemote)
}
