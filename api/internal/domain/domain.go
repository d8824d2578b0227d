package domain

import (
	"errors"
	"io"
)

// Upload is one image received with a submission.
type Upload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

type DownloadResult struct {
	FileName string
	Size     int64
	Content  io.ReadCloser
}

type ForceFailRequest struct {
	Reason string `json:"reason"`
}

var (
	ErrUnauthenticated = errors.New("missing or invalid credentials")
	ErrItemFailed      = errors.New("item failed")
	ErrNoArtifact      = errors.New("item has no artifact")
)
