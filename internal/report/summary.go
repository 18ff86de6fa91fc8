package report

import (
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/originlink/internal/model"
)

// Summary is the statistics of a run shared by every writer.
type Summary struct {
	Status         string          `json:"status"`
	Total          int             `json:"total"`
	Success        int             `json:"success"`
	Fail           int             `json:"fail"`
	FetchPhases    int             `json:"fetch_phases"`
	ScannedFiles   int             `json:"scanned_files"`
	DynamicURLs    int             `json:"dynamic_urls"`
	SourceDir      string          `json:"source_dir"`
	ReplacedDir    string          `json:"replaced_dir"`
	DownloadDir    string          `json:"download_dir"`
	DownloadSize   int64           `json:"download_size"`
	LinkType       model.LinkType  `json:"link_type"`
	Origin         string          `json:"origin,omitempty"`
	Elapsed        time.Duration   `json:"elapsed_ns"`
	DiscoveryError string          `json:"discovery_error,omitempty"`
	Failed         []model.Outcome `json:"failed"`
}

// NewSummary computes the summary of run.
func NewSummary(run *model.Run) *Summary {
	s := &Summary{
		Status:         run.State(),
		Total:          run.Total(),
		Success:        run.SuccessCount(),
		Fail:           run.FailCount(),
		FetchPhases:    run.FetchPhases,
		ScannedFiles:   run.ScannedFiles,
		DynamicURLs:    len(run.DynamicURLs),
		SourceDir:      run.SourceDir,
		ReplacedDir:    run.ReplacedDir,
		DownloadDir:    run.DownloadDir,
		DownloadSize:   run.DownloadSize,
		LinkType:       run.LinkType,
		Elapsed:        run.Elapsed().Round(time.Millisecond),
		DiscoveryError: run.DiscoveryError,
		Failed:         run.Failed(),
	}
	if run.LinkType == model.LinkTypeAbsolute {
		s.Origin = run.Origin
	}
	return s
}

// SizeText is the download size in human units, e.g. "1.2 MB".
func (s *Summary) SizeText() string {
	return humanize.Bytes(uint64(max(s.DownloadSize, 0))) //nolint:gosec // clamped to non-negative
}

// label title-cases a status or link type for display.
func label(s string) string {
	return cases.Title(language.English).String(s)
}
