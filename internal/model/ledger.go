package model

// Ledger tracks every external URL of a run through its two states:
// pending (discovered, not yet attempted) and downloaded (attempted once,
// whatever the outcome).
//
// Invariants:
//   - a URL is never pending and downloaded at the same time
//   - a URL moves from pending to downloaded exactly once
//   - neither set ever shrinks except by that move
//
// Both sets keep insertion order so that every derived output (fetch order,
// mapping file, summary) is reproducible within a run.
//
// A Ledger is not safe for concurrent use; the fixpoint driver owns it and
// only touches it between download batches.
type Ledger struct {
	pending    []string
	downloaded []string
	state      map[string]urlState
}

type urlState int

const (
	statePending urlState = iota + 1
	stateDownloaded
)

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		pending:    make([]string, 0),
		downloaded: make([]string, 0),
		state:      make(map[string]urlState),
	}
}

// Discover records url as pending unless it is already known.
// It reports whether the URL was new.
func (l *Ledger) Discover(url string) bool {
	if url == "" {
		return false
	}
	if _, ok := l.state[url]; ok {
		return false
	}
	l.state[url] = statePending
	l.pending = append(l.pending, url)
	return true
}

// TakePending moves every pending URL into the downloaded set and returns
// them in discovery order. The caller is expected to attempt each returned
// URL exactly once. It returns nil when nothing is pending.
func (l *Ledger) TakePending() []string {
	if len(l.pending) == 0 {
		return nil
	}
	taken := l.pending
	l.pending = make([]string, 0)
	for _, url := range taken {
		l.state[url] = stateDownloaded
	}
	l.downloaded = append(l.downloaded, taken...)
	return taken
}

// Known reports whether url is pending or downloaded.
func (l *Ledger) Known(url string) bool {
	_, ok := l.state[url]
	return ok
}

// IsDownloaded reports whether url has been attempted.
func (l *Ledger) IsDownloaded(url string) bool {
	return l.state[url] == stateDownloaded
}

// Pending returns a copy of the pending URLs in discovery order.
func (l *Ledger) Pending() []string {
	out := make([]string, len(l.pending))
	copy(out, l.pending)
	return out
}

// Downloaded returns a copy of the downloaded URLs in attempt order.
func (l *Ledger) Downloaded() []string {
	out := make([]string, len(l.downloaded))
	copy(out, l.downloaded)
	return out
}

// Len returns the number of distinct URLs ever discovered.
func (l *Ledger) Len() int {
	return len(l.state)
}
