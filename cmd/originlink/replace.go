package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nao1215/originlink/internal/config"
	"github.com/nao1215/originlink/internal/database"
	"github.com/nao1215/originlink/internal/discovery"
	"github.com/nao1215/originlink/internal/download"
	"github.com/nao1215/originlink/internal/extract"
	"github.com/nao1215/originlink/internal/localize"
	"github.com/nao1215/originlink/internal/log"
	"github.com/nao1215/originlink/internal/model"
	"github.com/nao1215/originlink/internal/pipeline"
	"github.com/nao1215/originlink/internal/report"
	"github.com/nao1215/originlink/internal/rewrite"
	"github.com/nao1215/originlink/internal/staging"
)

// Stage message colors.
var (
	stageColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// NewReplaceCmd creates the replace command.
func NewReplaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replace",
		Short: "Download external assets and rewrite references to a local mirror",
		Long: `Replace localizes the external assets of a built site.

It copies the source directory to the replaced directory, downloading every
external asset with a matching extension into the download directory and
rewriting each reference to the mirror. Downloaded CSS and JavaScript are
scanned again so that fonts and images they reference are mirrored too.
Finally the rewritten site is loaded in a headless browser to catch assets
requested only at runtime.

Nothing is written to the output directories until the run succeeds: work
happens in a staging directory that is promoted at the end.

Examples:
  # Localize dist/ into dist-local/ with links to http://127.0.0.1:8080
  originlink replace

  # Relative links, custom directories
  originlink replace -s build -r build-local -d vendor -l relative

  # Serve the mirror from another origin and write the mapping file
  originlink replace --protocol https --hostname static.internal --port 0 -m

  # Rewrite in place, only stylesheets and fonts
  originlink replace -s public -r public -e css,woff2

  # Private CDN behind a proxy
  originlink replace -H "Authorization: Bearer token" --proxy 127.0.0.1:1080`,
		Args: cobra.NoArgs,
		RunE: runReplaceCmd,
	}

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .originlink in current or home directory)")

	// Directories
	cmd.Flags().StringP("source", "s", config.DefaultSourceDir,
		"Directory scanned for external references")
	cmd.Flags().StringP("replaced", "r", config.DefaultReplacedDir,
		"Directory that receives the rewritten site (may equal --source)")
	cmd.Flags().StringP("download", "d", config.DefaultDownloadDir,
		"Directory that receives the downloaded assets")

	// Rewriting
	cmd.Flags().StringP("link-type", "l", string(config.DefaultLinkType),
		"Rewrite mode: relative or absolute")
	cmd.Flags().String("hostname", config.DefaultHostname,
		"Hostname of absolute links")
	cmd.Flags().Int("port", config.DefaultPort,
		"Port of absolute links (0 omits the port)")
	cmd.Flags().String("protocol", config.DefaultProtocol,
		"Protocol of absolute links: http or https")
	cmd.Flags().StringSliceP("extensions", "e", config.DefaultExtensions,
		"Asset extensions to localize")
	cmd.Flags().StringSlice("ignore", nil,
		"Glob patterns of source files to leave out")
	cmd.Flags().BoolP("mapping-file", "m", false,
		"Write the URL mapping file")
	cmd.Flags().String("mapping-path", config.DefaultMappingPath,
		"Path of the URL mapping file")

	// Downloads
	cmd.Flags().IntP("concurrency", "k", config.DefaultConcurrency,
		"Number of concurrent downloads")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout of a single download")
	cmd.Flags().StringArrayP("header", "H", nil,
		`Header sent with every download, "Name: Value" (repeatable)`)
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent sent with every download")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy for downloads (host:port)")

	// Runtime discovery
	cmd.Flags().Bool("no-discovery", false,
		"Skip the headless browser pass")
	cmd.Flags().Bool("dev", false,
		"Open a visible browser with developer tools for the discovery pass")
	cmd.Flags().Int("discovery-port", 0,
		"Local port the site is served on during discovery (0 picks a free port)")
	cmd.Flags().Duration("discovery-timeout", config.DefaultDiscoveryTimeout,
		"Timeout of the discovery pass")
	cmd.Flags().String("entry", config.DefaultEntryPage,
		"Page loaded by the discovery pass, relative to the site root")
	cmd.Flags().String("chrome-path", "",
		"Browser executable for the discovery pass")

	// History
	cmd.Flags().Bool("no-history", false,
		"Do not save the run to the history database")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON summary (mutually exclusive with --markdown)")
	cmd.Flags().Bool("markdown", false,
		"Output Markdown summary (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write summary to specified file path (creates directories if needed)")

	return cmd
}

// runReplaceCmd executes the replace command.
func runReplaceCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runReplace(ctx, cfg, logger, cmd.OutOrStdout())
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from defaults, the configuration file and
// the flags the user set explicitly, in that order.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	cfg.ConfigFilePath, err = flags.GetString("config")
	if err != nil {
		return nil, err
	}

	// An explicitly specified config file must exist. Without one, a
	// missing file means defaults.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		file.Apply(cfg)
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	if err := applyStringFlags(cmd, map[string]*string{
		"source":       &cfg.SourceDir,
		"replaced":     &cfg.ReplacedDir,
		"download":     &cfg.DownloadDir,
		"hostname":     &cfg.Hostname,
		"protocol":     &cfg.Protocol,
		"mapping-path": &cfg.MappingPath,
		"user-agent":   &cfg.UserAgent,
		"proxy":        &cfg.Proxy,
		"entry":        &cfg.EntryPage,
		"chrome-path":  &cfg.ChromePath,
		"output":       &cfg.ReportFile,
	}); err != nil {
		return nil, err
	}

	if flags.Changed("link-type") {
		lt, err := flags.GetString("link-type")
		if err != nil {
			return nil, err
		}
		cfg.LinkType = model.LinkType(lt)
	}

	if err := applyIntFlags(cmd, map[string]*int{
		"port":           &cfg.Port,
		"concurrency":    &cfg.Concurrency,
		"discovery-port": &cfg.DiscoveryPort,
	}); err != nil {
		return nil, err
	}

	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("discovery-timeout") {
		if cfg.DiscoveryTimeout, err = flags.GetDuration("discovery-timeout"); err != nil {
			return nil, err
		}
	}

	if flags.Changed("extensions") {
		if cfg.Extensions, err = flags.GetStringSlice("extensions"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("ignore") {
		if cfg.Ignore, err = flags.GetStringSlice("ignore"); err != nil {
			return nil, err
		}
	}

	if flags.Changed("header") {
		headers, err := flags.GetStringArray("header")
		if err != nil {
			return nil, err
		}
		for _, h := range headers {
			name, value, ok := strings.Cut(h, ":")
			if !ok || strings.TrimSpace(name) == "" {
				return nil, fmt.Errorf("invalid header %q: expected \"Name: Value\"", h)
			}
			cfg.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}

	if flags.Changed("mapping-file") {
		if cfg.MappingFile, err = flags.GetBool("mapping-file"); err != nil {
			return nil, err
		}
	}
	if noDiscovery, err := flags.GetBool("no-discovery"); err != nil {
		return nil, err
	} else if noDiscovery {
		cfg.Discovery = false
	}
	if noHistory, err := flags.GetBool("no-history"); err != nil {
		return nil, err
	} else if noHistory {
		cfg.History = false
	}

	if cfg.Dev, err = flags.GetBool("dev"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	return cfg, nil
}

// applyStringFlags copies every explicitly set string flag to its target.
func applyStringFlags(cmd *cobra.Command, targets map[string]*string) error {
	for name, dst := range targets {
		if !cmd.Flags().Changed(name) {
			continue
		}
		v, err := cmd.Flags().GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}

// applyIntFlags copies every explicitly set int flag to its target.
func applyIntFlags(cmd *cobra.Command, targets map[string]*int) error {
	for name, dst := range targets {
		if !cmd.Flags().Changed(name) {
			continue
		}
		v, err := cmd.Flags().GetInt(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}

// setupLogger creates a secure structured logger based on verbosity setting.
func setupLogger(verbose bool) *slog.Logger {
	return log.NewSecureLogger(os.Stderr, verbose)
}

// components are the collaborators of one run.
type components struct {
	workspace  *staging.Workspace
	origin     *rewrite.Origin
	coord      *download.Coordinator
	driver     *localize.Driver
	discoverer pipeline.Discoverer
}

// buildComponents wires the run from cfg. newBrowser is called only when
// discovery is enabled.
func buildComponents(cfg *config.Config, logger *slog.Logger, newBrowser func() discovery.Browser) (*components, error) {
	ws, err := staging.New(cfg.SourceDir, cfg.ReplacedDir, cfg.DownloadDir, staging.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	client, err := download.NewHTTPClient(download.ClientOptions{
		Timeout:   cfg.Timeout,
		UserAgent: cfg.UserAgent,
		Headers:   cfg.Headers,
		Proxy:     cfg.Proxy,
	})
	if err != nil {
		_ = ws.Cleanup() //nolint:errcheck // best effort
		return nil, err
	}

	origin := rewrite.New(rewrite.Options{
		LinkType:        cfg.LinkType,
		Protocol:        cfg.Protocol,
		Hostname:        cfg.Hostname,
		Port:            cfg.Port,
		DownloadDirName: ws.DownloadDirName(),
	})

	coord := download.NewCoordinator(ws.DownloadStage(), download.NewHTTPFetcher(client),
		download.WithLogger(logger),
		download.WithConcurrency(cfg.Concurrency),
	)

	driver := localize.NewDriver(ws, extract.New(cfg.Extensions, extract.WithLogger(logger)), origin, coord,
		localize.WithLogger(logger),
		localize.WithIgnore(cfg.Ignore),
	)

	c := &components{
		workspace: ws,
		origin:    origin,
		coord:     coord,
		driver:    driver,
	}

	if cfg.Discovery {
		c.discoverer = discovery.NewPass(newBrowser(),
			discovery.WithLogger(logger),
			discovery.WithPort(cfg.DiscoveryPort),
			discovery.WithEntry(cfg.EntryPage),
			discovery.WithTimeout(cfg.DiscoveryTimeout),
			discovery.WithMirror(origin.Local),
		)
	}

	return c, nil
}

// runReplace executes one localization run and writes its summary to out.
func runReplace(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	newBrowser := func() discovery.Browser {
		return discovery.NewChromeBrowser(
			discovery.WithHeadless(!cfg.Dev),
			discovery.WithExecPath(cfg.ChromePath),
			discovery.WithChromeLogger(logger),
		)
	}
	return execute(ctx, cfg, logger, out, newBrowser)
}

// execute is runReplace with the browser injectable.
func execute(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer, newBrowser func() discovery.Browser) error {
	c, err := buildComponents(cfg, logger, newBrowser)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.workspace.Cleanup(); err != nil {
			logger.Warn("failed to remove staging directory", "error", err)
		}
	}()

	mappingPath := ""
	if cfg.MappingFile {
		mappingPath = cfg.MappingPath
	}

	p := pipeline.DefaultPipeline(pipeline.DefaultPipelineConfig{
		Driver:      c.driver,
		Workspace:   c.workspace,
		Downloader:  c.coord,
		Discoverer:  c.discoverer,
		MappingPath: mappingPath,
	}, pipeline.WithLogger(logger))

	run := model.NewRun(cfg.SourceDir, cfg.ReplacedDir, cfg.DownloadDir, cfg.LinkType, c.origin.Base())

	stageColor.Fprintf(out, "Localizing %s -> %s (%s links)\n", cfg.SourceDir, cfg.ReplacedDir, cfg.LinkType) //nolint:errcheck // terminal output
	if cfg.Discovery {
		fmt.Fprintln(out, "Runtime discovery enabled: a headless browser will load "+cfg.EntryPage)
	}

	execErr := p.Execute(ctx, run)
	run.Finish(execErr)

	printOutcome(out, cfg, run)

	if err := outputReport(cfg, run, out); err != nil {
		logger.Error("report failed", "error", err)
	}

	if cfg.History {
		// An interrupted run is saved too; the history write must not be cancelled.
		if err := saveRun(context.WithoutCancel(ctx), cfg.DBDir, run, logger); err != nil {
			logger.Error("failed to save run", "error", err)
		}
	}

	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			return interruptedError(run)
		}
		return execErr
	}
	return nil
}

// interruptedError describes what a cancelled run left behind.
func interruptedError(run *model.Run) error {
	if slices.Contains(run.PerformedSteps, "promote") {
		return errors.New("interrupted after promotion: outputs are in place, later steps were skipped")
	}
	return errors.New("interrupted: nothing was promoted")
}

// printOutcome prints the colored one-line result of the run.
func printOutcome(out io.Writer, cfg *config.Config, run *model.Run) {
	elapsed := run.Elapsed().Round(time.Millisecond)

	switch run.State() {
	case model.RunInterrupted:
		warnColor.Fprintf(out, "Interrupted after %s\n", elapsed) //nolint:errcheck // terminal output
	case model.RunFailed:
		errorColor.Fprintf(out, "Failed after %s: %s\n", elapsed, run.ErrorMessage) //nolint:errcheck // terminal output
	default:
		successColor.Fprintf(out, "Localized %d of %d asset(s) in %s\n", run.SuccessCount(), run.Total(), elapsed) //nolint:errcheck // terminal output
		if run.FailCount() > 0 {
			warnColor.Fprintf(out, "%d download(s) failed; see the summary below\n", run.FailCount()) //nolint:errcheck // terminal output
		}
		if run.DiscoveryError != "" {
			warnColor.Fprintf(out, "Runtime discovery degraded: %s\n", run.DiscoveryError) //nolint:errcheck // terminal output
		}
		if cfg.MappingFile {
			fmt.Fprintf(out, "Mapping file: %s\n", cfg.MappingPath)
		}
	}
}

// outputReport outputs the run summary in the requested format.
func outputReport(cfg *config.Config, run *model.Run, stdout io.Writer) error {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(output)
	default:
		w = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	_, err := w.Write(run)
	return err
}

// saveRun saves the run to the history database in dbDir.
func saveRun(ctx context.Context, dbDir string, run *model.Run, logger *slog.Logger) error {
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	id, err := db.SaveRun(ctx, run)
	if err != nil {
		return err
	}

	logger.Info("run saved to history", "id", id, "db", db.Path())
	return nil
}
