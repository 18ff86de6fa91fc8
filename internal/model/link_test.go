package model

import (
	"fmt"
	"sync"
	"testing"
)

// TestClassify tests file classification by extension.
func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want FileClass
	}{
		{"dist/index.html", FileClassMarkup},
		{"dist/INDEX.HTML", FileClassMarkup},
		{"views/layout.ejs", FileClassMarkup},
		{"dist/css/app.css", FileClassStylesheet},
		{"dist/js/app.js", FileClassGeneric},
		{"dist/data.json", FileClassGeneric},
		{"dist/README", FileClassGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.path); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

// TestParseLinkType tests link type parsing.
func TestParseLinkType(t *testing.T) {
	t.Parallel()

	if lt, err := ParseLinkType("Relative"); err != nil || lt != LinkTypeRelative {
		t.Errorf("expected relative, got %q (%v)", lt, err)
	}
	if lt, err := ParseLinkType("absolute"); err != nil || lt != LinkTypeAbsolute {
		t.Errorf("expected absolute, got %q (%v)", lt, err)
	}
	if _, err := ParseLinkType("symlink"); err == nil {
		t.Error("expected error for unknown link type")
	}
}

// TestBatchCounters tests that concurrent Add calls never lose updates.
func TestBatchCounters(t *testing.T) {
	t.Parallel()

	b := NewBatch()
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := StatusSuccess
			if i%4 == 0 {
				status = StatusFail
			}
			b.Add(Outcome{URL: fmt.Sprintf("http://a.com/%d.js", i), Status: status})
		}()
	}
	wg.Wait()

	if b.Len() != 100 {
		t.Fatalf("expected 100 outcomes, got %d", b.Len())
	}
	if b.SuccessCount() != 75 || b.FailCount() != 25 {
		t.Errorf("expected 75/25, got %d/%d", b.SuccessCount(), b.FailCount())
	}
}

// TestRunAddBatch tests merging batches into a run.
func TestRunAddBatch(t *testing.T) {
	t.Parallel()

	run := NewRun("dist", "dist-local", "assets", LinkTypeRelative, "")
	run.Provenance.Record("http://a.com/x.js", Occurrence{FilePath: "dist/index.html", Replace: "/assets/x.js"})

	b := NewBatch()
	b.Add(Outcome{URL: "http://a.com/x.js", Status: StatusSuccess})
	b.Add(Outcome{URL: "http://a.com/y.js", Status: StatusFail, Error: "404"})
	run.AddBatch(b)

	if run.Total() != 2 || run.SuccessCount() != 1 || run.FailCount() != 1 {
		t.Errorf("unexpected counts: total=%d success=%d fail=%d", run.Total(), run.SuccessCount(), run.FailCount())
	}
	if occ := run.Provenance.Occurrences("http://a.com/x.js"); occ[0].Status != StatusSuccess {
		t.Errorf("expected provenance status success, got %q", occ[0].Status)
	}
	if failed := run.Failed(); len(failed) != 1 || failed[0].URL != "http://a.com/y.js" {
		t.Errorf("unexpected failed list: %v", failed)
	}
}

// TestNormalizeURL tests quote stripping and protocol-relative resolution.
func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"double quoted", `"https://a.com/x.js"`, "https://a.com/x.js"},
		{"single quoted", `'https://a.com/x.js'`, "https://a.com/x.js"},
		{"protocol relative", `"//cdn.example.com/lib.css"`, "http://cdn.example.com/lib.css"},
		{"bare", "http://a.com/x.js", "http://a.com/x.js"},
		{"mismatched quotes kept", `"http://a.com/x.js'`, `"http://a.com/x.js'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeURL(tt.raw); got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
