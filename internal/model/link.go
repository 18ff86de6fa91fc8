package model

import (
	"fmt"
	"path/filepath"
	"strings"
)

// LinkType selects how an external reference is rewritten.
// It is fixed for the whole run.
type LinkType string

const (
	// LinkTypeRelative rewrites a reference to the mirror path alone,
	// e.g. "/assets/lib/app.js".
	LinkTypeRelative LinkType = "relative"

	// LinkTypeAbsolute rewrites a reference to a full URL on the configured
	// origin, e.g. "http://127.0.0.1:8080/assets/lib/app.js".
	LinkTypeAbsolute LinkType = "absolute"
)

// ParseLinkType converts a user supplied string into a LinkType.
// Matching is case-insensitive.
func ParseLinkType(s string) (LinkType, error) {
	switch LinkType(strings.ToLower(strings.TrimSpace(s))) {
	case LinkTypeRelative:
		return LinkTypeRelative, nil
	case LinkTypeAbsolute:
		return LinkTypeAbsolute, nil
	default:
		return "", fmt.Errorf("unknown link type %q (want %q or %q)", s, LinkTypeRelative, LinkTypeAbsolute)
	}
}

// String returns the link type name.
func (l LinkType) String() string {
	return string(l)
}

// FileClass drives which extraction grammar applies to a file.
type FileClass int

const (
	// FileClassGeneric covers every file that is neither markup nor a stylesheet
	// (JavaScript, JSON, SVG, images, ...).
	FileClassGeneric FileClass = iota

	// FileClassMarkup covers HTML documents and EJS templates.
	FileClassMarkup

	// FileClassStylesheet covers CSS files.
	FileClassStylesheet
)

// String returns a human-readable name for the class.
func (c FileClass) String() string {
	switch c {
	case FileClassMarkup:
		return "markup"
	case FileClassStylesheet:
		return "stylesheet"
	default:
		return "generic"
	}
}

// Classify derives the FileClass of a file from its extension.
func Classify(path string) FileClass {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".ejs":
		return FileClassMarkup
	case ".css":
		return FileClassStylesheet
	default:
		return FileClassGeneric
	}
}

// NormalizeURL returns the identity of a raw reference: surrounding quotes
// are stripped and a protocol-relative URL is resolved against "http:".
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if len(u) >= 2 && (u[0] == '"' || u[0] == '\'') && u[len(u)-1] == u[0] {
		u = u[1 : len(u)-1]
	}
	if strings.HasPrefix(u, "//") {
		u = "http:" + u
	}
	return u
}
