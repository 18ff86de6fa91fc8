// Package discovery finds assets that are only requested at runtime.
//
// Static extraction cannot see URLs assembled by JavaScript. After the
// fixpoint converges, the rewritten site is served locally and loaded in a
// headless browser with request interception enabled. Every request the
// browser makes is observed; external URLs the run has never seen are
// returned so they can be downloaded as one extra batch.
//
// The browser is reached through the Browser, Session and Page interfaces.
// ChromeBrowser implements them with chromedp; tests substitute a fake.
package discovery
