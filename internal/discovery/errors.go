package discovery

import "errors"

var (
	// ErrLaunch is returned when the browser cannot be started.
	ErrLaunch = errors.New("failed to launch browser")

	// ErrNavigate is returned when the entry page cannot be loaded.
	ErrNavigate = errors.New("failed to load entry page")

	// ErrServe is returned when the local site server cannot listen.
	ErrServe = errors.New("failed to serve site")
)
