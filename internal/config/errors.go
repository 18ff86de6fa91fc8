package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
var (
	// ErrNoSourceDir is returned when the source directory is empty.
	ErrNoSourceDir = errors.New("no source directory specified")

	// ErrNoReplacedDir is returned when the replaced directory is empty.
	ErrNoReplacedDir = errors.New("no replaced directory specified")

	// ErrNoDownloadDir is returned when the download directory is empty.
	ErrNoDownloadDir = errors.New("no download directory specified")

	// ErrDownloadDirOverlap is returned when the download directory is the
	// source or replaced directory. The mirror would overwrite the site.
	ErrDownloadDirOverlap = errors.New("download directory must differ from the source and replaced directories")

	// ErrInvalidLinkType is returned for a link type other than relative or absolute.
	ErrInvalidLinkType = errors.New("invalid link type: must be relative or absolute")

	// ErrInvalidProtocol is returned for a protocol other than http or https.
	ErrInvalidProtocol = errors.New("invalid protocol: must be http or https")

	// ErrNoHostname is returned when absolute links are requested without a hostname.
	ErrNoHostname = errors.New("no hostname specified: required for absolute links")

	// ErrInvalidPort is returned when the port is outside 0..65535.
	// Port 0 omits the port from absolute links.
	ErrInvalidPort = errors.New("invalid port: must be between 0 and 65535")

	// ErrNoExtensions is returned when the extension list is empty.
	ErrNoExtensions = errors.New("no extensions specified")

	// ErrInvalidConcurrency is returned when the download concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidTimeout is returned when the download timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidDiscoveryTimeout is returned when the discovery timeout is not positive.
	ErrInvalidDiscoveryTimeout = errors.New("invalid discovery timeout: must be positive")

	// ErrInvalidIgnorePattern is returned for a malformed ignore glob.
	ErrInvalidIgnorePattern = errors.New("invalid ignore pattern")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
