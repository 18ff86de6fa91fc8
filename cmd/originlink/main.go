// Package main provides the entry point for the originlink CLI.
//
// originlink localizes the external assets of a built web site: it copies
// the site, downloads every referenced CDN asset into a local mirror and
// rewrites the references to point at the mirror.
//
// Usage:
//
//	originlink replace
//	originlink replace -s build -r build-local -l relative
//
// See --help for all available options.
package main

// main is the entry point for originlink.
func main() {
	Execute()
}
