package download

import "errors"

var (
	// ErrStagingRoot is returned when the staging root cannot be created.
	// It is the only error that makes a whole batch fail.
	ErrStagingRoot = errors.New("cannot create staging root")

	// ErrDestinationConflict is recorded for a URL whose destination path is
	// already claimed by a different URL.
	ErrDestinationConflict = errors.New("destination already claimed by another url")

	// ErrUnsupportedURL is recorded for URLs that are not absolute http(s) URLs.
	ErrUnsupportedURL = errors.New("unsupported url")

	// ErrUnexpectedStatus is recorded when the server answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected http status")

	// ErrInvalidProxyAddress is returned for a proxy address that is not host:port.
	ErrInvalidProxyAddress = errors.New("invalid proxy address: expected host:port")
)
