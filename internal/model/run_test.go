package model

import (
	"context"
	"errors"
	"testing"
)

func TestRunCounts(t *testing.T) {
	t.Parallel()

	run := NewRun("dist", "dist-local", "assets", LinkTypeRelative, "")
	run.Provenance.Record("https://cdn.test/a.css", Occurrence{FilePath: "index.html", Replace: "/assets/a.css"})

	batch := NewBatch()
	batch.Add(Outcome{URL: "https://cdn.test/a.css", Status: StatusSuccess, Size: 10})
	batch.Add(Outcome{URL: "https://cdn.test/b.js", Status: StatusFail, Error: "404"})
	run.AddBatch(batch)

	if run.Total() != 2 || run.SuccessCount() != 1 || run.FailCount() != 1 {
		t.Errorf("unexpected counts: total %d success %d fail %d", run.Total(), run.SuccessCount(), run.FailCount())
	}
	if failed := run.Failed(); len(failed) != 1 || failed[0].URL != "https://cdn.test/b.js" {
		t.Errorf("unexpected failed outcomes: %v", failed)
	}
	if occ := run.Provenance.Occurrences("https://cdn.test/a.css"); len(occ) != 1 || occ[0].Status != StatusSuccess {
		t.Errorf("expected provenance stamped with status, got %v", occ)
	}
}

func TestRunState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		interrupted bool
		want        string
	}{
		{name: "complete", want: RunComplete},
		{name: "failed", err: errors.New("disk full"), want: RunFailed},
		{name: "interrupted wins over the error", err: context.Canceled, interrupted: true, want: RunInterrupted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			run := NewRun("dist", "dist-local", "assets", LinkTypeAbsolute, "http://127.0.0.1:8080")
			run.Interrupted = tt.interrupted
			run.Finish(tt.err)

			if got := run.State(); got != tt.want {
				t.Errorf("State() = %q, want %q", got, tt.want)
			}
			if run.FinishedAt.IsZero() {
				t.Error("expected FinishedAt to be set")
			}
			if run.Elapsed() < 0 {
				t.Error("expected non-negative elapsed time")
			}
		})
	}
}
