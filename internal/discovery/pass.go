package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds the whole pass: launch, navigation and load.
	DefaultTimeout = 60 * time.Second

	// DefaultEntry is the page loaded when none is configured.
	DefaultEntry = "index.html"
)

// Site describes the staged site to load.
type Site struct {
	// ReplaceRoot is served at "/".
	ReplaceRoot string

	// DownloadRoot is served at "/<DownloadDirName>/".
	DownloadRoot string

	// DownloadDirName is the first segment of every mirror path.
	DownloadDirName string
}

// Pass runs one runtime discovery session.
type Pass struct {
	browser Browser
	host    string
	port    int
	entry   string
	timeout time.Duration
	decide  Decider
	mirror  func(string) bool
	logger  *slog.Logger
}

// PassOption configures a Pass.
type PassOption func(*Pass)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PassOption {
	return func(p *Pass) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPort sets the local server port. Zero picks a free port.
func WithPort(port int) PassOption {
	return func(p *Pass) {
		p.port = port
	}
}

// WithEntry sets the entry page, relative to the site root.
func WithEntry(entry string) PassOption {
	return func(p *Pass) {
		if entry != "" {
			p.entry = entry
		}
	}
}

// WithTimeout bounds the pass.
func WithTimeout(d time.Duration) PassOption {
	return func(p *Pass) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithDecider replaces the interception predicate. Default is BlockImages.
func WithDecider(decide Decider) PassOption {
	return func(p *Pass) {
		if decide != nil {
			p.decide = decide
		}
	}
}

// WithMirror sets the predicate that recognizes URLs on the replacement
// origin. Those are rewritten references, not unknown assets.
func WithMirror(mirror func(string) bool) PassOption {
	return func(p *Pass) {
		p.mirror = mirror
	}
}

// NewPass creates a Pass driving browser.
func NewPass(browser Browser, opts ...PassOption) *Pass {
	p := &Pass{
		browser: browser,
		host:    "127.0.0.1",
		entry:   DefaultEntry,
		timeout: DefaultTimeout,
		decide:  BlockImages,
		mirror:  func(string) bool { return false },
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Discover serves site, loads the entry page and returns the external URLs
// requested by the page that known does not report, de-duplicated, in
// observation order. Partial observations are returned with the error when
// navigation fails part way.
func (p *Pass) Discover(ctx context.Context, site Site, known func(string) bool) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addr := net.JoinHostPort(p.host, strconv.Itoa(p.port))
	mounts := map[string]string{}
	if site.DownloadDirName != "" && site.DownloadRoot != "" {
		mounts[site.DownloadDirName] = site.DownloadRoot
	}

	server, err := Serve(addr, site.ReplaceRoot, mounts, p.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := server.Close(); err != nil {
			p.logger.Debug("failed to stop site server", "error", err)
		}
	}()

	session, err := p.browser.Launch(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			p.logger.Debug("failed to close browser", "error", err)
		}
	}()

	page, err := session.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	entryURL := server.URL() + "/" + strings.TrimPrefix(p.entry, "/")
	p.logger.Info("loading site in browser", "url", entryURL)

	requests, navErr := page.Navigate(ctx, entryURL, p.decide)
	unknown := Unknown(requests, server.Addr(), known, p.mirror)

	p.logger.Info("runtime discovery complete",
		"requests", len(requests),
		"unknown", len(unknown),
	)
	return unknown, navErr
}

// Unknown filters observed requests down to external http(s) URLs that are
// not on the local server's host, not on the mirror origin and not known,
// de-duplicated in observation order. Blocked requests count: the browser
// asked for them.
func Unknown(requests []Request, localAddr string, known, mirror func(string) bool) []string {
	localHost := localAddr
	if h, _, err := net.SplitHostPort(localAddr); err == nil {
		localHost = h
	}

	seen := make(map[string]struct{}, len(requests))
	out := make([]string, 0)

	for _, r := range requests {
		u, err := url.Parse(r.URL)
		if err != nil || u.Host == "" {
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		if strings.EqualFold(u.Hostname(), localHost) {
			continue
		}
		if mirror != nil && mirror(r.URL) {
			continue
		}
		if known != nil && known(r.URL) {
			continue
		}
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}
		out = append(out, r.URL)
	}
	return out
}
