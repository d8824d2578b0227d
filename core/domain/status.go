package domain

import "fmt"

type FileStatus string

const (
	FilePending    FileStatus = "pending"
	FileProcessing FileStatus = "processing"
	FileCompleted  FileStatus = "completed"
	FileFailed     FileStatus = "failed"
)

func (s FileStatus) Valid() bool {
	switch s {
	case FilePending, FileProcessing, FileCompleted, FileFailed:
		return true
	}
	return false
}

func (s FileStatus) Terminal() bool {
	return s == FileCompleted || s == FileFailed
}

// Transition applies the per-file state machine:
//
//	pending -> processing -> {completed | failed}
//
// Repeating the current state is accepted (progress ticks, duplicate terminal
// reports). A pending item may jump straight to a terminal state when it is
// failed before a worker picks it up.
func Transition(current, requested FileStatus) (FileStatus, error) {
	if !current.Valid() {
		return current, fmt.Errorf("%w: current %q", ErrInvalidStatus, current)
	}
	if !requested.Valid() {
		return current, fmt.Errorf("%w: requested %q", ErrInvalidStatus, requested)
	}

	if current == requested {
		return requested, nil
	}

	switch current {
	case FilePending:
		return requested, nil
	case FileProcessing:
		if requested.Terminal() {
			return requested, nil
		}
	}

	return current, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, requested)
}
