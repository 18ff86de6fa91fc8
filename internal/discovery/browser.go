package discovery

import (
	"context"
	"net/url"
	"path"
	"strings"
)

// Request is one network request observed in the browser.
type Request struct {
	// URL is the full request URL.
	URL string

	// Method is the HTTP method.
	Method string

	// ResourceType is the browser's resource classification
	// (Document, Script, Stylesheet, Image, XHR, ...).
	ResourceType string

	// Blocked reports that the request was aborted by the Decider.
	Blocked bool
}

// Decision is the verdict for an intercepted request.
type Decision int

const (
	// Continue lets the request proceed.
	Continue Decision = iota

	// Abort fails the request in the browser.
	Abort
)

// Decider decides synchronously what happens to an intercepted request.
// It must be pure: observation is recorded by the Page, not the Decider.
type Decider func(Request) Decision

// Browser starts browser sessions.
type Browser interface {
	Launch(ctx context.Context) (Session, error)
}

// Session is a running browser.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a browser tab.
type Page interface {
	// Navigate loads rawURL, waits for the load event and returns every
	// request observed while doing so, in observation order. Requests are
	// returned even when navigation fails part way.
	Navigate(ctx context.Context, rawURL string, decide Decider) ([]Request, error)
}

// blockedExtensions are aborted during discovery: images cannot pull in
// further assets and are the bulk of a page's transfer.
var blockedExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
}

// BlockImages aborts image requests and lets everything else through.
func BlockImages(req Request) Decision {
	u, err := url.Parse(req.URL)
	if err != nil {
		return Continue
	}
	if _, ok := blockedExtensions[strings.ToLower(path.Ext(u.Path))]; ok {
		return Abort
	}
	return Continue
}
