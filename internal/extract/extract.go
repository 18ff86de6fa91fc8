package extract

import (
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/net/html"

	"github.com/nao1215/originlink/internal/model"
)

// DefaultExtensions are the asset extensions localized when none are configured.
var DefaultExtensions = []string{"css", "js", "png", "json", "svg", "gif"}

// Rewriter turns a raw reference into its local replacement.
//
// raw keeps the quotes it was found with. The returned value must carry the
// same quote style; key is the normalized URL used for de-duplication.
// An error leaves the reference untouched and unrecorded.
//
// Local reports whether a URL already points at the mirror origin; such
// URLs are the product of an earlier rewrite and are never touched again.
type Rewriter interface {
	Rewrite(raw string) (value string, key string, err error)
	Local(rawURL string) bool
}

// Result is the outcome of extracting one file.
type Result struct {
	// Content is the rewritten content.
	Content []byte

	// URLs are the normalized external URLs found, de-duplicated,
	// in order of first appearance.
	URLs []string

	// Binary reports that the content was sniffed as binary and passed through.
	Binary bool
}

// Extractor finds and rewrites external asset references.
// An Extractor holds no mutable state and is safe for concurrent use.
type Extractor struct {
	extensions map[string]struct{}
	quotedURL  *regexp.Regexp
	logger     *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Extractor that localizes URLs ending with one of extensions.
// Extensions are matched case-insensitively, with or without a leading dot.
// An empty list selects DefaultExtensions.
func New(extensions []string, opts ...Option) *Extractor {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}

	e := &Extractor{
		extensions: make(map[string]struct{}, len(extensions)),
		logger:     slog.Default(),
	}

	alternatives := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext == "" {
			continue
		}
		if _, dup := e.extensions[ext]; dup {
			continue
		}
		e.extensions[ext] = struct{}{}
		alternatives = append(alternatives, regexp.QuoteMeta(ext))
	}
	e.quotedURL = buildQuotedURLRegex(alternatives)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// buildQuotedURLRegex builds the unified URL pattern: a double or single
// quoted absolute or protocol-relative URL whose text ends with one of exts
// right before the closing quote.
func buildQuotedURLRegex(exts []string) *regexp.Regexp {
	alt := strings.Join(exts, "|")
	return regexp.MustCompile(
		`(?i)"(?:https?:)?//[^\s"]+\.(?:` + alt + `)"` +
			`|'(?:https?:)?//[^\s']+\.(?:` + alt + `)'`,
	)
}

// scriptBlockRegex matches a whole script element, opening tag in group 1.
var scriptBlockRegex = regexp.MustCompile(`(?is)(<script\b[^>]*>).*?</script\s*>`)

// srcAttrRegex matches the src attribute of an opening tag. Group 2 is the
// value with its quotes, if any.
var srcAttrRegex = regexp.MustCompile(`(?i)(\ssrc\s*=\s*)("[^"]*"|'[^']*'|[^\s"'>]+)`)

// cssURLRegex matches url(...) pointing at another host. Group 1 and 3 are
// the opening and closing quotes (possibly empty); group 2 is the URL.
//
// RE2 has no backreferences, so matching quotes are checked in code.
var cssURLRegex = regexp.MustCompile(`(?i)url\(\s*(["']?)((?:https?:)?//[^\s"')]+)(["']?)\s*\)`)

// Extract rewrites every qualifying reference in content according to class.
// Empty content yields an empty result. Malformed content yields no URLs,
// never an error.
func (e *Extractor) Extract(content []byte, class model.FileClass, rw Rewriter) Result {
	if len(content) == 0 {
		return Result{Content: []byte{}, URLs: []string{}}
	}

	if class == model.FileClassGeneric && isBinary(content) {
		return Result{Content: content, URLs: []string{}, Binary: true}
	}

	c := &collector{seen: make(map[string]struct{}), urls: make([]string, 0)}
	text := string(content)

	switch class {
	case model.FileClassMarkup:
		text = e.splitScripts(text, rw, c)
		text = e.rewriteQuoted(text, rw, c, true)
	case model.FileClassStylesheet:
		text = e.rewriteStylesheet(text, rw, c)
	default:
		text = e.rewriteQuoted(text, rw, c, false)
	}

	return Result{Content: []byte(text), URLs: c.urls}
}

// Qualifies reports whether rawURL points at a localizable asset: an
// absolute http(s) URL with a host whose final path segment carries one of
// the configured extensions. The query is ignored.
func (e *Extractor) Qualifies(rawURL string) bool {
	u, err := url.Parse(model.NormalizeURL(rawURL))
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	_, ok := e.extensions[ext]
	return ok
}

// splitScripts inspects every script element. Aggregated requests of the
// form prefix??a,b,c are split into one script tag per sub-resource so that
// each can be mirrored individually; other qualifying sources are rewritten
// in place, so a query string or missing quotes never hide them.
func (e *Extractor) splitScripts(text string, rw Rewriter, c *collector) string {
	return scriptBlockRegex.ReplaceAllStringFunc(text, func(block string) string {
		m := scriptBlockRegex.FindStringSubmatch(block)
		if m == nil {
			return block
		}
		attrs, ok := openingTagAttrs(m[1])
		if !ok {
			return block
		}
		if strings.EqualFold(strings.TrimSpace(attrs["type"]), "text/ng-template") {
			return block
		}

		src := strings.TrimSpace(attrs["src"])
		if !strings.Contains(src, "http") {
			return block
		}

		prefix, collection, aggregated := strings.Cut(src, "??")
		if !aggregated {
			if !e.Qualifies(src) || rw.Local(src) {
				return block
			}
			tag, ok := e.rewriteSrc(m[1], rw, c)
			if !ok {
				return block
			}
			return tag + block[len(m[1]):]
		}

		var b strings.Builder
		for _, part := range strings.Split(collection, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			value := `"` + sub + `"`
			if e.Qualifies(sub) && !rw.Local(sub) {
				value = e.rewriteValue(value, rw, c)
			}
			b.WriteString("\n<script src=")
			b.WriteString(value)
			b.WriteString("></script>")
		}
		if b.Len() == 0 {
			return block
		}
		e.logger.Debug("split aggregated script", "src", src)
		return b.String()
	})
}

// rewriteSrc rewrites the src attribute of an opening script tag in place,
// keeping its quote style. It reports false when the tag has no src value
// the rewriter accepts.
func (e *Extractor) rewriteSrc(tag string, rw Rewriter, c *collector) (string, bool) {
	loc := srcAttrRegex.FindStringSubmatchIndex(tag)
	if loc == nil {
		return tag, false
	}
	raw := tag[loc[4]:loc[5]]
	quote := ""
	if raw[0] == '"' || raw[0] == '\'' {
		quote = raw[:1]
		raw = raw[1 : len(raw)-1]
	}

	value, key, err := rw.Rewrite(quote + html.UnescapeString(raw) + quote)
	if err != nil {
		e.logger.Debug("skip unparseable url", "url", raw, "error", err)
		return tag, false
	}
	c.add(key)
	return tag[:loc[4]] + value + tag[loc[5]:], true
}

// rewriteValue rewrites one quoted value, returning it unchanged on error.
func (e *Extractor) rewriteValue(raw string, rw Rewriter, c *collector) string {
	value, key, err := rw.Rewrite(raw)
	if err != nil {
		e.logger.Debug("skip unparseable url", "url", raw, "error", err)
		return raw
	}
	c.add(key)
	return value
}

// rewriteQuoted applies the unified quoted URL pattern. When
// protocolRelative is false, matches starting with "//" are kept as is.
func (e *Extractor) rewriteQuoted(text string, rw Rewriter, c *collector, protocolRelative bool) string {
	return e.quotedURL.ReplaceAllStringFunc(text, func(match string) string {
		inner := match[1 : len(match)-1]
		if !protocolRelative && strings.HasPrefix(inner, "//") {
			return match
		}
		if !e.Qualifies(inner) || rw.Local(inner) {
			return match
		}
		value, key, err := rw.Rewrite(match)
		if err != nil {
			e.logger.Debug("skip unparseable url", "url", inner, "error", err)
			return match
		}
		c.add(key)
		return value
	})
}

// rewriteStylesheet rewrites url(...) references, keeping the quote style.
func (e *Extractor) rewriteStylesheet(text string, rw Rewriter, c *collector) string {
	return cssURLRegex.ReplaceAllStringFunc(text, func(match string) string {
		m := cssURLRegex.FindStringSubmatch(match)
		if m == nil || m[1] != m[3] {
			return match
		}
		quote, inner := m[1], m[2]
		if rw.Local(inner) {
			return match
		}

		value, key, err := rw.Rewrite(quote + inner + quote)
		if err != nil {
			e.logger.Debug("skip unparseable url", "url", inner, "error", err)
			return match
		}
		c.add(key)
		return "url(" + value + ")"
	})
}

// openingTagAttrs tokenizes a single opening tag and returns its attributes.
// Attribute names are lower-cased by the tokenizer.
func openingTagAttrs(tag string) (map[string]string, bool) {
	z := html.NewTokenizer(strings.NewReader(tag))
	if z.Next() != html.StartTagToken {
		return nil, false
	}
	tok := z.Token()
	attrs := make(map[string]string, len(tok.Attr))
	for _, a := range tok.Attr {
		if _, dup := attrs[a.Key]; !dup {
			attrs[a.Key] = a.Val
		}
	}
	return attrs, true
}

// isBinary sniffs content and reports whether it is not text.
func isBinary(content []byte) bool {
	for m := mimetype.Detect(content); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return false
		}
	}
	return true
}

// collector keeps found URLs unique and ordered.
type collector struct {
	seen map[string]struct{}
	urls []string
}

func (c *collector) add(u string) {
	if u == "" {
		return
	}
	if _, ok := c.seen[u]; ok {
		return
	}
	c.seen[u] = struct{}{}
	c.urls = append(c.urls, u)
}
