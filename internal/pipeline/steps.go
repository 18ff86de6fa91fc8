package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/originlink/internal/discovery"
	"github.com/nao1215/originlink/internal/localize"
	"github.com/nao1215/originlink/internal/model"
	"github.com/nao1215/originlink/internal/report"
	"github.com/nao1215/originlink/internal/staging"
)

// Fixpoint runs the fixpoint driver. Implemented by localize.Driver.
type Fixpoint interface {
	Run(ctx context.Context, run *model.Run) error
}

// LocalizeStep drives scan, download and rewrite to convergence.
type LocalizeStep struct {
	driver Fixpoint
}

// NewLocalizeStep creates a LocalizeStep.
func NewLocalizeStep(driver Fixpoint) *LocalizeStep {
	return &LocalizeStep{driver: driver}
}

// Name returns the step name.
func (s *LocalizeStep) Name() string {
	return "localize"
}

// Do executes the fixpoint.
func (s *LocalizeStep) Do(ctx context.Context, run *model.Run) error {
	return s.driver.Run(ctx, run)
}

// Discoverer finds runtime-only URLs. Implemented by discovery.Pass.
type Discoverer interface {
	Discover(ctx context.Context, site discovery.Site, known func(string) bool) ([]string, error)
}

// DiscoveryStep loads the staged site in a browser and downloads what the
// page requested that static extraction missed, as a single batch. Found
// URLs are not scanned further.
//
// A browser failure never fails the run: it is logged and recorded in
// Run.DiscoveryError.
type DiscoveryStep struct {
	discoverer Discoverer
	site       discovery.Site
	downloader localize.Downloader
	logger     *slog.Logger
}

// DiscoveryStepOption configures a DiscoveryStep.
type DiscoveryStepOption func(*DiscoveryStep)

// WithDiscoveryLogger sets a custom logger for the discovery step.
func WithDiscoveryLogger(logger *slog.Logger) DiscoveryStepOption {
	return func(s *DiscoveryStep) {
		s.logger = logger
	}
}

// NewDiscoveryStep creates a DiscoveryStep.
func NewDiscoveryStep(d Discoverer, site discovery.Site, dl localize.Downloader, opts ...DiscoveryStepOption) *DiscoveryStep {
	s := &DiscoveryStep{
		discoverer: d,
		site:       site,
		downloader: dl,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *DiscoveryStep) Name() string {
	return "discovery"
}

// Do executes the discovery pass.
func (s *DiscoveryStep) Do(ctx context.Context, run *model.Run) error {
	unknown, err := s.discoverer.Discover(ctx, s.site, run.Ledger.Known)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("runtime discovery degraded", "error", err)
		run.DiscoveryError = err.Error()
	}

	for _, u := range unknown {
		if run.Ledger.Discover(u) {
			run.DynamicURLs = append(run.DynamicURLs, u)
			s.logger.Info("found runtime asset", "url", u)
		}
	}

	toFetch := run.Ledger.TakePending()
	if len(toFetch) == 0 {
		return nil
	}

	batch, err := s.downloader.Fetch(ctx, toFetch)
	if batch != nil {
		run.AddBatch(batch)
	}
	if err != nil {
		return fmt.Errorf("fetch runtime assets: %w", err)
	}
	return nil
}

// PromoteStep moves the staging trees to their final locations.
type PromoteStep struct {
	workspace *staging.Workspace
	logger    *slog.Logger
}

// NewPromoteStep creates a PromoteStep.
func NewPromoteStep(ws *staging.Workspace, logger *slog.Logger) *PromoteStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PromoteStep{workspace: ws, logger: logger}
}

// Name returns the step name.
func (s *PromoteStep) Name() string {
	return "promote"
}

// Do promotes the staging trees and records the mirror size.
func (s *PromoteStep) Do(_ context.Context, run *model.Run) error {
	if err := s.workspace.Promote(); err != nil {
		return err
	}

	size, err := staging.DirSize(s.workspace.DownloadDir())
	if err != nil {
		s.logger.Warn("failed to measure download directory", "error", err)
		return nil
	}
	run.DownloadSize = size
	return nil
}

// MappingStep writes the provenance mapping file.
type MappingStep struct {
	path string
}

// NewMappingStep creates a MappingStep writing to path.
func NewMappingStep(path string) *MappingStep {
	return &MappingStep{path: path}
}

// Name returns the step name.
func (s *MappingStep) Name() string {
	return "mapping"
}

// Do writes the mapping file.
func (s *MappingStep) Do(_ context.Context, run *model.Run) error {
	return report.WriteMappingFile(s.path, run.Provenance)
}

// DefaultPipelineConfig holds the collaborators of the default pipeline.
type DefaultPipelineConfig struct {
	// Driver runs the fixpoint.
	Driver Fixpoint

	// Workspace owns the staging trees.
	Workspace *staging.Workspace

	// Downloader fetches the runtime discovery batch.
	Downloader localize.Downloader

	// Discoverer runs runtime discovery. Nil disables the step.
	Discoverer Discoverer

	// MappingPath is where the mapping file is written. Empty disables the step.
	MappingPath string
}

// DefaultPipeline creates the standard localization pipeline:
// localize, discovery (optional), promote, mapping (optional).
//
// Discovery runs before promotion so the runtime batch lands in the
// promoted tree.
func DefaultPipeline(cfg DefaultPipelineConfig, opts ...Option) *Pipeline {
	p := New(opts...)

	p.AddStep(NewLocalizeStep(cfg.Driver))

	if cfg.Discoverer != nil {
		site := discovery.Site{
			ReplaceRoot:     cfg.Workspace.ReplaceStage(),
			DownloadRoot:    cfg.Workspace.DownloadStage(),
			DownloadDirName: cfg.Workspace.DownloadDirName(),
		}
		p.AddStep(NewDiscoveryStep(cfg.Discoverer, site, cfg.Downloader, WithDiscoveryLogger(p.logger)))
	}

	p.AddStep(NewPromoteStep(cfg.Workspace, p.logger))

	if cfg.MappingPath != "" {
		p.AddStep(NewMappingStep(cfg.MappingPath))
	}

	return p
}
