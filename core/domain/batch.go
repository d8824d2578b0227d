package domain

import (
	"fmt"
	"time"
)

// Item is one input image of a batch.
type Item struct {
	Key      string `json:"key"`
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	// Input is the file store object name of the uploaded image.
	Input string `json:"input"`
}

type FileProgress struct {
	Key       string     `json:"key"`
	Filename  string     `json:"filename"`
	Status    FileStatus `json:"status"`
	Progress  int        `json:"progress"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type BatchSummary struct {
	TotalFiles     int `json:"total_files"`
	CompletedFiles int `json:"completed_files"`
	FailedFiles    int `json:"failed_files"`
}

// BatchProgress is the tracked record of one job. Files keep submission order.
type BatchProgress struct {
	JobID          string         `json:"job_id"`
	Files          []FileProgress `json:"files"`
	TotalFiles     int            `json:"total_files"`
	CompletedFiles int            `json:"completed_files"`
	FailedFiles    int            `json:"failed_files"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func NewBatchProgress(jobID string, items []Item, now time.Time) BatchProgress {
	files := make([]FileProgress, 0, len(items))
	for _, it := range items {
		files = append(files, FileProgress{
			Key:       it.Key,
			Filename:  it.Filename,
			Status:    FilePending,
			UpdatedAt: now,
		})
	}

	return BatchProgress{
		JobID:      jobID,
		Files:      files,
		TotalFiles: len(files),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (b *BatchProgress) File(key string) (*FileProgress, bool) {
	for i := range b.Files {
		if b.Files[i].Key == key {
			return &b.Files[i], true
		}
	}
	return nil, false
}

func (b BatchProgress) Summary() BatchSummary {
	return BatchSummary{
		TotalFiles:     b.TotalFiles,
		CompletedFiles: b.CompletedFiles,
		FailedFiles:    b.FailedFiles,
	}
}

// Overall returns the floored mean progress over all files. Terminal files
// count as 100 whatever their outcome; an empty batch is complete.
func (b BatchProgress) Overall() int {
	if len(b.Files) == 0 {
		return 100
	}

	sum := 0
	for _, f := range b.Files {
		if f.Status.Terminal() {
			sum += 100
			continue
		}
		sum += ClampPercent(f.Progress)
	}

	return sum / len(b.Files)
}

func (b BatchProgress) Terminal() bool {
	for _, f := range b.Files {
		if !f.Status.Terminal() {
			return false
		}
	}
	return true
}

func (b BatchProgress) Started() bool {
	for _, f := range b.Files {
		if f.Status != FilePending {
			return true
		}
	}
	return false
}

func (b BatchProgress) Validate() error {
	if b.JobID == "" {
		return fmt.Errorf("%w: empty job id", ErrInvalidRecord)
	}
	if b.TotalFiles != len(b.Files) {
		return fmt.Errorf("%w: total_files %d, files %d", ErrInvalidRecord, b.TotalFiles, len(b.Files))
	}
	if b.CompletedFiles < 0 || b.FailedFiles < 0 || b.CompletedFiles+b.FailedFiles > b.TotalFiles {
		return fmt.Errorf("%w: counters %d+%d over %d", ErrInvalidRecord, b.CompletedFiles, b.FailedFiles, b.TotalFiles)
	}

	seen := make(map[string]struct{}, len(b.Files))
	for _, f := range b.Files {
		if f.Key == "" {
			return fmt.Errorf("%w: empty item key", ErrInvalidRecord)
		}
		if _, dup := seen[f.Key]; dup {
			return fmt.Errorf("%w: duplicate item key %q", ErrInvalidRecord, f.Key)
		}
		seen[f.Key] = struct{}{}
		if !f.Status.Valid() {
			return fmt.Errorf("%w: item %q status %q", ErrInvalidRecord, f.Key, f.Status)
		}
	}

	return nil
}

// ClampPercent bounds p to [0, 100].
func ClampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
