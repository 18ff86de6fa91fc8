package rewrite

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/nao1215/originlink/internal/model"
)

// ErrNotExternal is returned for references that have no scheme or host.
var ErrNotExternal = errors.New("not an external url")

// Origin rewrites external URLs to mirror paths.
//
// In relative mode the result is the mirror path alone; in absolute mode it
// is the mirror path under protocol://hostname[:port]. Query strings and
// fragments are always dropped: the mirror stores one file per path.
type Origin struct {
	linkType        model.LinkType
	protocol        string
	hostname        string
	port            int
	downloadDirName string
}

// Options describe the replacement origin.
type Options struct {
	// LinkType selects relative or absolute rewriting.
	LinkType model.LinkType

	// Protocol is the scheme of the absolute origin ("http" or "https").
	// A trailing colon is accepted.
	Protocol string

	// Hostname is the host of the absolute origin.
	Hostname string

	// Port is the port of the absolute origin. Zero omits the port.
	Port int

	// DownloadDirName is the first path segment of every mirror path,
	// normally the base name of the download directory.
	DownloadDirName string
}

// New creates an Origin.
func New(opts Options) *Origin {
	protocol := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(opts.Protocol), ":"))
	if protocol == "" {
		protocol = "http"
	}
	linkType := opts.LinkType
	if linkType == "" {
		linkType = model.LinkTypeAbsolute
	}
	return &Origin{
		linkType:        linkType,
		protocol:        protocol,
		hostname:        opts.Hostname,
		port:            opts.Port,
		downloadDirName: strings.Trim(path.Clean("/"+filepathToSlash(opts.DownloadDirName)), "/"),
	}
}

// Base returns protocol://hostname[:port], the origin used in absolute mode.
func (o *Origin) Base() string {
	host := o.hostname
	if o.port > 0 {
		host = net.JoinHostPort(o.hostname, strconv.Itoa(o.port))
	}
	return o.protocol + "://" + host
}

// Host returns hostname[:port] of the replacement origin.
func (o *Origin) Host() string {
	if o.port > 0 {
		return net.JoinHostPort(o.hostname, strconv.Itoa(o.port))
	}
	return o.hostname
}

// LinkType returns the rewrite mode.
func (o *Origin) LinkType() model.LinkType {
	return o.linkType
}

// Local reports whether rawURL is served by the replacement origin.
// Relative mirror paths have no host and are never external in the first place.
func (o *Origin) Local(rawURL string) bool {
	u, err := url.Parse(model.NormalizeURL(rawURL))
	if err != nil || u.Host == "" || o.hostname == "" {
		return false
	}
	if !strings.EqualFold(u.Hostname(), o.hostname) {
		return false
	}
	port := u.Port()
	if port == "" {
		port = defaultPort(u.Scheme)
	}
	want := strconv.Itoa(o.port)
	if o.port == 0 {
		want = defaultPort(o.protocol)
	}
	return port == want
}

func defaultPort(scheme string) string {
	if strings.EqualFold(scheme, "https") {
		return "443"
	}
	return "80"
}

// MirrorPath returns /<downloadDirName><path> for an external URL.
func (o *Origin) MirrorPath(rawURL string) (string, error) {
	u, err := parseExternal(rawURL)
	if err != nil {
		return "", err
	}
	return o.mirrorPath(u), nil
}

// mirrorPath cleans the URL path the same way download destinations are
// cleaned, so dot segments can never point outside the mirror. A trailing
// slash survives cleaning.
func (o *Origin) mirrorPath(u *url.URL) string {
	dir := u.Path == "" || strings.HasSuffix(u.Path, "/")
	cleaned := path.Clean("/" + u.Path)
	if dir && cleaned != "/" {
		cleaned += "/"
	}
	p := (&url.URL{Path: cleaned}).EscapedPath()
	if o.downloadDirName == "" {
		return p
	}
	return "/" + o.downloadDirName + p
}

// Rewrite returns the replacement for raw and its normalized key.
// Surrounding quotes are stripped before parsing and re-applied to value.
func (o *Origin) Rewrite(raw string) (string, string, error) {
	quote, _ := quoteOf(raw)
	key := model.NormalizeURL(raw)

	u, err := parseExternal(key)
	if err != nil {
		return raw, "", err
	}

	value := o.mirrorPath(u)
	if o.linkType == model.LinkTypeAbsolute {
		value = o.Base() + value
	}
	return quote + value + quote, key, nil
}

// ForFile binds the Origin to one source file: every successful rewrite
// appends an Occurrence for filePath to p.
func (o *Origin) ForFile(filePath string, p *model.Provenance) *FileRewriter {
	return &FileRewriter{origin: o, filePath: filePath, provenance: p}
}

// FileRewriter is an Origin scoped to a single file. It records provenance.
type FileRewriter struct {
	origin     *Origin
	filePath   string
	provenance *model.Provenance
}

// Rewrite rewrites raw and records the occurrence.
func (f *FileRewriter) Rewrite(raw string) (string, string, error) {
	value, key, err := f.origin.Rewrite(raw)
	if err != nil {
		return value, key, err
	}
	if f.provenance != nil {
		f.provenance.Record(key, model.Occurrence{
			FilePath: f.filePath,
			Replace:  strings.Trim(value, `"'`),
		})
	}
	return value, key, nil
}

// Local reports whether rawURL is served by the replacement origin.
func (f *FileRewriter) Local(rawURL string) bool {
	return f.origin.Local(rawURL)
}

func parseExternal(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%q: %w", rawURL, ErrNotExternal)
	}
	return u, nil
}

func quoteOf(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[:1], true
	}
	return "", false
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
