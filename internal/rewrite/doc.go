// Package rewrite maps external asset URLs onto the local mirror.
//
// Every URL becomes /<download dir name><cleaned path>, optionally prefixed
// with the replacement origin. The path is cleaned exactly like download
// destinations are, so a rewritten reference always names the file the
// mirror holds for it.
package rewrite
