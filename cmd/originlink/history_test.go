package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/nao1215/originlink/internal/database"
	"github.com/nao1215/originlink/internal/model"
)

// seedHistory saves two runs and returns the database directory.
// The second run fixes one download and drops another.
func seedHistory(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	runs := []map[string]model.Status{
		{
			"https://cdn.test/a.css": model.StatusSuccess,
			"https://cdn.test/b.js":  model.StatusFail,
			"https://cdn.test/c.png": model.StatusSuccess,
		},
		{
			"https://cdn.test/a.css": model.StatusSuccess,
			"https://cdn.test/b.js":  model.StatusSuccess,
			"https://cdn.test/d.svg": model.StatusSuccess,
		},
	}
	for _, outcomes := range runs {
		run := model.NewRun("dist", "dist-local", "assets", model.LinkTypeRelative, "")
		batch := model.NewBatch()
		for url, status := range outcomes {
			run.Provenance.Record(url, model.Occurrence{FilePath: "index.html", Replace: "/assets/x"})
			batch.Add(model.Outcome{URL: url, Destination: "x", Status: status})
		}
		run.AddBatch(batch)
		run.Finish(nil)
		if _, err := db.SaveRun(context.Background(), run); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
	}
	return dir
}

func runHistory(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	cmd := NewHistoryCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestNewHistoryCmd(t *testing.T) {
	t.Parallel()

	cmd := NewHistoryCmd()
	if cmd.Use != "history" {
		t.Errorf("expected use 'history', got %q", cmd.Use)
	}
	if cmd.PersistentFlags().Lookup("db-dir") == nil {
		t.Error("expected db-dir flag")
	}

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"list", "show", "diff"} {
		if !names[want] {
			t.Errorf("expected %s subcommand", want)
		}
	}
}

func TestHistoryList(t *testing.T) {
	t.Parallel()

	dir := seedHistory(t)

	t.Run("lists runs newest first", func(t *testing.T) {
		t.Parallel()

		out, err := runHistory(t, "list", "--db-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Run history (2 runs)") {
			t.Errorf("expected two runs, got %s", out)
		}
		first := strings.Index(out, "  2 ")
		second := strings.Index(out, "  1 ")
		if first < 0 || second < 0 || first > second {
			t.Errorf("expected run 2 before run 1, got %s", out)
		}
	})

	t.Run("limit", func(t *testing.T) {
		t.Parallel()

		out, err := runHistory(t, "list", "--db-dir", dir, "-n", "1", "--json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var runs []database.RunMetadata
		if err := json.Unmarshal([]byte(out), &runs); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(runs) != 1 || runs[0].ID != 2 {
			t.Errorf("expected only run 2, got %+v", runs)
		}
	})

	t.Run("empty history", func(t *testing.T) {
		t.Parallel()

		out, err := runHistory(t, "list", "--db-dir", t.TempDir())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No runs found") {
			t.Errorf("expected empty message, got %s", out)
		}
	})
}

func TestHistoryShow(t *testing.T) {
	t.Parallel()

	dir := seedHistory(t)

	t.Run("shows summary and references", func(t *testing.T) {
		t.Parallel()

		out, err := runHistory(t, "show", "1", "--refs", "--db-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "ORIGINLINK SUMMARY") {
			t.Errorf("expected summary, got %s", out)
		}
		if !strings.Contains(out, "REFERENCES (3)") {
			t.Errorf("expected three references, got %s", out)
		}
		if !strings.Contains(out, "https://cdn.test/b.js") {
			t.Errorf("expected failed URL listed, got %s", out)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		t.Parallel()

		_, err := runHistory(t, "show", "42", "--db-dir", dir)
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Errorf("expected not found error, got %v", err)
		}
	})

	t.Run("invalid ID", func(t *testing.T) {
		t.Parallel()

		_, err := runHistory(t, "show", "abc", "--db-dir", dir)
		if err == nil || !strings.Contains(err.Error(), "invalid run ID") {
			t.Errorf("expected invalid ID error, got %v", err)
		}
	})
}

func TestHistoryDiff(t *testing.T) {
	t.Parallel()

	dir := seedHistory(t)

	t.Run("text", func(t *testing.T) {
		t.Parallel()

		out, err := runHistory(t, "diff", "1", "2", "--db-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{
			"[+] https://cdn.test/d.svg",
			"[-] https://cdn.test/c.png",
			"[~] https://cdn.test/b.js: fail -> success",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output, got %s", want, out)
			}
		}
	})

	t.Run("same run has no differences", func(t *testing.T) {
		t.Parallel()

		out, err := runHistory(t, "diff", "2", "2", "--db-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No differences") {
			t.Errorf("expected no differences, got %s", out)
		}
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		out, err := runHistory(t, "diff", "1", "2", "--db-dir", dir, "--json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var diff database.RunDiff
		if err := json.Unmarshal([]byte(out), &diff); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(diff.Added) != 1 || len(diff.Removed) != 1 || len(diff.Changed) != 1 {
			t.Errorf("unexpected diff: %+v", diff)
		}
	})
}
