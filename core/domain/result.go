package domain

import (
	"fmt"
	"sort"
	"time"
)

// ItemOutcome is the terminal outcome of one item as seen by the barrier.
type ItemOutcome struct {
	Key       string   `json:"key"`
	Index     int      `json:"index"`
	Filename  string   `json:"filename"`
	Success   bool     `json:"success"`
	Artifacts []string `json:"artifacts,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

func Succeeded(it Item, artifacts []string) ItemOutcome {
	return ItemOutcome{
		Key:       it.Key,
		Index:     it.Index,
		Filename:  it.Filename,
		Success:   true,
		Artifacts: artifacts,
	}
}

func Failed(it Item, reason string) ItemOutcome {
	return ItemOutcome{
		Key:      it.Key,
		Index:    it.Index,
		Filename: it.Filename,
		Reason:   reason,
	}
}

type BatchResult struct {
	JobID       string        `json:"job_id"`
	Items       []ItemOutcome `json:"per_item"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	CollectedAt time.Time     `json:"collected_at"`
}

func NewBatchResult(jobID string, outcomes []ItemOutcome, now time.Time) BatchResult {
	items := make([]ItemOutcome, len(outcomes))
	copy(items, outcomes)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Index < items[j].Index })

	res := BatchResult{
		JobID:       jobID,
		Items:       items,
		CollectedAt: now,
	}
	for _, o := range items {
		if o.Success {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	return res
}

// AllFailed is true only for a non-empty batch in which no item succeeded.
func (r BatchResult) AllFailed() bool {
	return len(r.Items) > 0 && r.Succeeded == 0
}

func (r BatchResult) Outcome(key string) (ItemOutcome, bool) {
	for _, o := range r.Items {
		if o.Key == key {
			return o, true
		}
	}
	return ItemOutcome{}, false
}

func (r BatchResult) Validate() error {
	if r.JobID == "" {
		return fmt.Errorf("%w: empty job id", ErrInvalidRecord)
	}
	if r.Succeeded+r.Failed != len(r.Items) {
		return fmt.Errorf("%w: %d+%d outcomes for %d items", ErrInvalidRecord, r.Succeeded, r.Failed, len(r.Items))
	}
	return nil
}
