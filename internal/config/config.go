package config

import (
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/originlink/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "originlink"

	// DefaultHostname is the host of absolute links.
	DefaultHostname = "127.0.0.1"

	// DefaultPort is the port of absolute links.
	DefaultPort = 8080

	// DefaultProtocol is the scheme of absolute links.
	DefaultProtocol = "http"

	// DefaultSourceDir is the directory scanned for references.
	DefaultSourceDir = "dist"

	// DefaultReplacedDir receives the rewritten copy of the source tree.
	DefaultReplacedDir = "dist-local"

	// DefaultDownloadDir receives the mirrored assets. Its base name is the
	// first segment of every rewritten path.
	DefaultDownloadDir = "assets"

	// DefaultLinkType rewrites references under the configured origin.
	DefaultLinkType = model.LinkTypeAbsolute

	// DefaultMappingPath is where the mapping file is written when enabled.
	DefaultMappingPath = "originlink.map.json"

	// DefaultConcurrency is the number of downloads in flight.
	DefaultConcurrency = 10

	// DefaultTimeout bounds a single download.
	DefaultTimeout = 30 * time.Second

	// DefaultDiscoveryTimeout bounds the browser pass.
	DefaultDiscoveryTimeout = 60 * time.Second

	// DefaultEntryPage is loaded by the browser pass.
	DefaultEntryPage = "index.html"

	// DefaultUserAgent identifies originlink in download requests.
	DefaultUserAgent = "originlink/1.0 (+https://github.com/nao1215/originlink)"
)

// DefaultExtensions are the asset extensions localized by default.
var DefaultExtensions = []string{"css", "js", "png", "json", "svg", "gif"}

// Config holds all configuration options for a run.
// It is populated from defaults, the configuration file and CLI flags, and
// passed through the application rather than kept in global state.
type Config struct {
	// Hostname, Port and Protocol form the origin of absolute links:
	// protocol://hostname[:port]. Port 0 omits the port.
	Hostname string
	Port     int
	Protocol string

	// SourceDir is the directory scanned for external references.
	SourceDir string

	// ReplacedDir receives the rewritten tree. It may equal SourceDir, in
	// which case rewritten files are written over the sources.
	ReplacedDir string

	// DownloadDir receives the mirrored assets.
	DownloadDir string

	// LinkType selects relative or absolute rewriting.
	LinkType model.LinkType

	// MappingFile enables writing the provenance mapping file to MappingPath.
	MappingFile bool
	MappingPath string

	// Extensions are the asset extensions whose URLs are localized.
	Extensions []string

	// Concurrency is the number of downloads in flight at once.
	Concurrency int

	// Timeout bounds a single download.
	Timeout time.Duration

	// UserAgent is sent with every download.
	UserAgent string

	// Headers are sent with every download, e.g. an Authorization header for
	// a private CDN. Values are redacted from logs.
	Headers map[string]string

	// Proxy is an optional SOCKS5 proxy (host:port) for downloads.
	Proxy string

	// Ignore are glob patterns of source files left out of the rewritten tree.
	Ignore []string

	// Discovery enables the runtime browser pass.
	Discovery bool

	// DiscoveryPort is the local port the staged site is served on. 0 picks
	// a free port.
	DiscoveryPort int

	// DiscoveryTimeout bounds the browser pass.
	DiscoveryTimeout time.Duration

	// EntryPage is the page the browser loads, relative to the site root.
	EntryPage string

	// ChromePath overrides the browser executable.
	ChromePath string

	// Dev opens a visible browser with developer tools instead of a headless one.
	Dev bool

	// Verbose enables detailed log output using slog.LevelDebug.
	Verbose bool

	// History enables saving the run to the history database in DBDir.
	History bool
	DBDir   string

	// JSONReport and MarkdownReport select the summary format.
	// The default is a human-readable text summary.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile is the output file for the summary. Empty means stdout.
	ReportFile string

	// ConfigFilePath is the explicit configuration file path, if any.
	ConfigFilePath string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Hostname:         DefaultHostname,
		Port:             DefaultPort,
		Protocol:         DefaultProtocol,
		SourceDir:        DefaultSourceDir,
		ReplacedDir:      DefaultReplacedDir,
		DownloadDir:      DefaultDownloadDir,
		LinkType:         DefaultLinkType,
		MappingPath:      DefaultMappingPath,
		Extensions:       slices.Clone(DefaultExtensions),
		Concurrency:      DefaultConcurrency,
		Timeout:          DefaultTimeout,
		UserAgent:        DefaultUserAgent,
		Headers:          make(map[string]string),
		Discovery:        true,
		DiscoveryTimeout: DefaultDiscoveryTimeout,
		EntryPage:        DefaultEntryPage,
		History:          true,
		DBDir:            XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for originlink, where the
// history database lives.
// On Linux: ~/.local/share/originlink
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for originlink.
// On Linux: ~/.config/originlink
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Origin returns protocol://hostname[:port].
func (c *Config) Origin() string {
	if c.Port > 0 {
		return fmt.Sprintf("%s://%s:%d", c.Protocol, c.Hostname, c.Port)
	}
	return fmt.Sprintf("%s://%s", c.Protocol, c.Hostname)
}

// Normalize trims and lower-cases the fields that are compared literally.
// Validate calls it first.
func (c *Config) Normalize() {
	c.Protocol = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(c.Protocol), ":"))
	c.LinkType = model.LinkType(strings.ToLower(strings.TrimSpace(string(c.LinkType))))

	exts := make([]string, 0, len(c.Extensions))
	for _, ext := range c.Extensions {
		for _, part := range strings.Split(ext, ",") {
			part = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(part), "."))
			if part != "" && !slices.Contains(exts, part) {
				exts = append(exts, part)
			}
		}
	}
	c.Extensions = exts
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	c.Normalize()

	if strings.TrimSpace(c.SourceDir) == "" {
		return ErrNoSourceDir
	}
	if strings.TrimSpace(c.ReplacedDir) == "" {
		return ErrNoReplacedDir
	}
	if strings.TrimSpace(c.DownloadDir) == "" {
		return ErrNoDownloadDir
	}
	download := filepath.Clean(c.DownloadDir)
	if download == filepath.Clean(c.SourceDir) || download == filepath.Clean(c.ReplacedDir) {
		return ErrDownloadDirOverlap
	}

	if _, err := model.ParseLinkType(string(c.LinkType)); err != nil {
		return ErrInvalidLinkType
	}
	if c.Protocol != "http" && c.Protocol != "https" {
		return ErrInvalidProtocol
	}
	if c.LinkType == model.LinkTypeAbsolute && strings.TrimSpace(c.Hostname) == "" {
		return ErrNoHostname
	}
	if c.Port < 0 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.DiscoveryPort < 0 || c.DiscoveryPort > 65535 {
		return ErrInvalidPort
	}
	if len(c.Extensions) == 0 {
		return ErrNoExtensions
	}

	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Discovery && c.DiscoveryTimeout <= 0 {
		return ErrInvalidDiscoveryTimeout
	}

	for _, pattern := range c.Ignore {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("%w %q: %w", ErrInvalidIgnorePattern, pattern, err)
		}
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	return nil
}

// DownloadDirName is the base name of the download directory.
func (c *Config) DownloadDirName() string {
	return filepath.Base(filepath.Clean(c.DownloadDir))
}
