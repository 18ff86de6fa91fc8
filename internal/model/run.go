package model

import (
	"time"
)

// Run holds everything one localization run produces.
// It is the state threaded through the pipeline steps: each step reads what
// the previous steps recorded and adds its own results.
type Run struct {
	// ID is the history database identifier. Zero until the run is saved.
	ID int64 `json:"id,omitempty"`

	// SourceDir is the directory that was scanned.
	SourceDir string `json:"source_dir"`

	// ReplacedDir is the final location of the rewritten source tree.
	ReplacedDir string `json:"replaced_dir"`

	// DownloadDir is the final location of the mirrored asset tree.
	DownloadDir string `json:"download_dir"`

	// LinkType is the rewrite mode used for the run.
	LinkType LinkType `json:"link_type"`

	// Origin is the replacement origin used in absolute mode,
	// e.g. "http://127.0.0.1:8080".
	Origin string `json:"origin"`

	// StartedAt and FinishedAt bracket the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`

	// Ledger tracks pending and downloaded URLs. Not serialized: the
	// downloaded set is reconstructible from Outcomes.
	Ledger *Ledger `json:"-"`

	// Provenance maps every original URL to its rewritten occurrences.
	Provenance *Provenance `json:"mapping"`

	// Outcomes lists every download attempt across all batches, in order.
	Outcomes []Outcome `json:"outcomes"`

	// DynamicURLs are the URLs found only by the runtime discovery pass.
	DynamicURLs []string `json:"dynamic_urls,omitempty"`

	// FetchPhases counts the fetch phases of the fixpoint loop.
	// The runtime discovery batch is not included.
	FetchPhases int `json:"fetch_phases"`

	// ScannedFiles counts the files run through the extractor.
	ScannedFiles int `json:"scanned_files"`

	// DownloadSize is the total size in bytes of the promoted download tree.
	DownloadSize int64 `json:"download_size"`

	// DiscoveryError records why the runtime discovery pass was degraded.
	// Empty when the pass succeeded or was disabled.
	DiscoveryError string `json:"discovery_error,omitempty"`

	// PerformedSteps lists the pipeline steps that ran, in order.
	PerformedSteps []string `json:"performed_steps"`

	// Interrupted reports that the run was cancelled before completing.
	Interrupted bool `json:"interrupted,omitempty"`

	// Error is the fatal error that stopped the run, if any.
	Error error `json:"-"`

	// ErrorMessage is Error as a string for serialization.
	ErrorMessage string `json:"error,omitempty"`
}

// NewRun creates a Run with fresh state.
func NewRun(sourceDir, replacedDir, downloadDir string, linkType LinkType, origin string) *Run {
	return &Run{
		SourceDir:      sourceDir,
		ReplacedDir:    replacedDir,
		DownloadDir:    downloadDir,
		LinkType:       linkType,
		Origin:         origin,
		StartedAt:      time.Now(),
		Ledger:         NewLedger(),
		Provenance:     NewProvenance(),
		Outcomes:       make([]Outcome, 0),
		DynamicURLs:    make([]string, 0),
		PerformedSteps: make([]string, 0),
	}
}

// AddBatch merges the outcomes of a download batch into the run and stamps
// each URL's provenance entries with its status.
func (r *Run) AddBatch(b *Batch) {
	for _, o := range b.Outcomes() {
		r.Outcomes = append(r.Outcomes, o)
		r.Provenance.MarkStatus(o.URL, o.Status)
	}
}

// Total returns the number of download attempts.
func (r *Run) Total() int {
	return len(r.Outcomes)
}

// SuccessCount returns the number of successful downloads.
func (r *Run) SuccessCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == StatusSuccess {
			n++
		}
	}
	return n
}

// FailCount returns the number of failed downloads.
func (r *Run) FailCount() int {
	return r.Total() - r.SuccessCount()
}

// Failed returns the failed outcomes in attempt order.
func (r *Run) Failed() []Outcome {
	out := make([]Outcome, 0)
	for _, o := range r.Outcomes {
		if o.Status != StatusSuccess {
			out = append(out, o)
		}
	}
	return out
}

// Elapsed returns the run duration. For a run still in progress it is the
// time since StartedAt.
func (r *Run) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Finish stamps FinishedAt and copies err into the serializable fields.
func (r *Run) Finish(err error) {
	r.FinishedAt = time.Now()
	if err != nil {
		r.Error = err
		r.ErrorMessage = err.Error()
	}
}

// Run states as reported in summaries and the history database.
const (
	RunComplete    = "complete"
	RunFailed      = "failed"
	RunInterrupted = "interrupted"
)

// State is the final state of the run. A cancelled run is interrupted even
// though it also carries the cancellation error.
func (r *Run) State() string {
	switch {
	case r.Interrupted:
		return RunInterrupted
	case r.ErrorMessage != "":
		return RunFailed
	default:
		return RunComplete
	}
}
