// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// Asset URLs of private CDNs frequently carry credentials: signed query
// parameters, tokens, or user:password pairs. Download headers configured by
// the user may hold API keys. The SecureHandler masks these before records
// reach the output:
//   - Attributes whose key names a secret (Authorization, Cookie, token, ...)
//   - Values that look like secrets (JWT, Bearer and Basic credentials)
//   - The userinfo and signature query parameters of any URL in a value,
//     including URLs embedded in error messages
//
// URLs stay readable apart from the masked parts, so a failed download can
// still be identified in the log.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//
//	logger.Info("fetching",
//	    "url", "https://cdn.example.com/app.js?X-Amz-Signature=abc",
//	    // logged as https://cdn.example.com/app.js?X-Amz-Signature=***REDACTED***
//	)
//
//	slog.SetDefault(logger)
package log
