package model

import (
	"sync"
	"sync/atomic"
)

// Status is the result of a single download attempt.
type Status string

const (
	// StatusSuccess means the bytes were written to the staging tree.
	StatusSuccess Status = "success"

	// StatusFail means the attempt failed and nothing was left behind.
	StatusFail Status = "fail"
)

// Outcome is the result of one download attempt.
type Outcome struct {
	// URL is the original external URL.
	URL string `json:"url"`

	// Destination is the file path the URL was (or would have been) written to.
	Destination string `json:"destination"`

	// Status is success or fail.
	Status Status `json:"status"`

	// Error holds the failure reason. Empty on success.
	Error string `json:"error,omitempty"`

	// Size is the number of bytes written on success.
	Size int64 `json:"size,omitempty"`

	// Digest is the hex SHA3-256 of the body as downloaded, before any
	// rewriting. Empty on failure.
	Digest string `json:"digest,omitempty"`
}

// Batch collects the outcomes of one call to the download coordinator.
// It is safe for concurrent use: every pool worker reports into the same
// Batch and the counters never lose updates.
type Batch struct {
	mu       sync.Mutex
	outcomes map[string]Outcome
	order    []string

	success atomic.Int64
	fail    atomic.Int64
}

// NewBatch creates an empty Batch.
func NewBatch() *Batch {
	return &Batch{
		outcomes: make(map[string]Outcome),
		order:    make([]string, 0),
	}
}

// Add stores an outcome and updates the counters.
// A second outcome for the same URL is ignored.
func (b *Batch) Add(o Outcome) {
	b.mu.Lock()
	if _, dup := b.outcomes[o.URL]; dup {
		b.mu.Unlock()
		return
	}
	b.outcomes[o.URL] = o
	b.order = append(b.order, o.URL)
	b.mu.Unlock()

	if o.Status == StatusSuccess {
		b.success.Add(1)
	} else {
		b.fail.Add(1)
	}
}

// Outcome returns the outcome recorded for url.
func (b *Batch) Outcome(url string) (Outcome, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.outcomes[url]
	return o, ok
}

// Outcomes returns every outcome in completion order.
func (b *Batch) Outcomes() []Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Outcome, 0, len(b.order))
	for _, url := range b.order {
		out = append(out, b.outcomes[url])
	}
	return out
}

// Succeeded returns the outcomes with StatusSuccess in completion order.
func (b *Batch) Succeeded() []Outcome {
	all := b.Outcomes()
	out := make([]Outcome, 0, len(all))
	for _, o := range all {
		if o.Status == StatusSuccess {
			out = append(out, o)
		}
	}
	return out
}

// SuccessCount returns the number of successful downloads.
func (b *Batch) SuccessCount() int {
	return int(b.success.Load())
}

// FailCount returns the number of failed downloads.
func (b *Batch) FailCount() int {
	return int(b.fail.Load())
}

// Len returns the number of outcomes.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}
