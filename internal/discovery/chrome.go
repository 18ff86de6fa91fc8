package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ChromeBrowser launches Chrome or Chromium through chromedp.
// Requires Chrome/Chromium to be installed on the system.
type ChromeBrowser struct {
	headless bool
	execPath string
	logger   *slog.Logger
}

// ChromeOption configures a ChromeBrowser.
type ChromeOption func(*ChromeBrowser)

// WithHeadless selects headless mode. Default is true; false opens a
// visible window with developer tools, for debugging a site's loading.
func WithHeadless(headless bool) ChromeOption {
	return func(b *ChromeBrowser) {
		b.headless = headless
	}
}

// WithExecPath sets the browser executable. Empty means chromedp's lookup.
func WithExecPath(p string) ChromeOption {
	return func(b *ChromeBrowser) {
		b.execPath = p
	}
}

// WithChromeLogger sets the logger.
func WithChromeLogger(logger *slog.Logger) ChromeOption {
	return func(b *ChromeBrowser) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewChromeBrowser creates a ChromeBrowser.
func NewChromeBrowser(opts ...ChromeOption) *ChromeBrowser {
	b := &ChromeBrowser{headless: true, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Launch starts the browser process.
func (b *ChromeBrowser) Launch(ctx context.Context) (Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if !b.headless {
		allocOpts = append(allocOpts, chromedp.Flag("auto-open-devtools-for-tabs", true))
	}
	if b.execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			b.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	// Running no actions starts the browser and its first tab.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	return &chromeSession{
		ctx:    browserCtx,
		cancel: func() { cancelBrowser(); cancelAlloc() },
		first:  true,
		logger: b.logger,
	}, nil
}

type chromeSession struct {
	ctx    context.Context
	cancel func()
	logger *slog.Logger

	mu    sync.Mutex
	first bool
}

// NewPage returns the session's initial tab the first time and a new tab
// afterwards.
func (s *chromeSession) NewPage(_ context.Context) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.first {
		s.first = false
		return &chromePage{ctx: s.ctx, logger: s.logger}, nil
	}
	tabCtx, cancel := chromedp.NewContext(s.ctx)
	return &chromePage{ctx: tabCtx, cancel: cancel, logger: s.logger}, nil
}

// Close shuts the browser down.
func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// Navigate enables Fetch-domain interception, loads rawURL and waits for the
// load event. Paused requests are resolved from a separate goroutine because
// event listeners must not block the protocol reader.
func (p *chromePage) Navigate(ctx context.Context, rawURL string, decide Decider) ([]Request, error) {
	var (
		mu       sync.Mutex
		done     bool
		observed = make([]Request, 0)
		pending  sync.WaitGroup
	)

	chromedp.ListenTarget(p.ctx, func(ev any) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}

		req := Request{
			URL:          paused.Request.URL,
			Method:       paused.Request.Method,
			ResourceType: paused.ResourceType.String(),
		}
		verdict := decide(req)
		req.Blocked = verdict == Abort

		mu.Lock()
		if done {
			mu.Unlock()
			return
		}
		observed = append(observed, req)
		pending.Add(1)
		mu.Unlock()

		go func() {
			defer pending.Done()
			c := chromedp.FromContext(p.ctx)
			if c == nil || c.Target == nil {
				return
			}
			execCtx := cdp.WithExecutor(p.ctx, c.Target)
			var err error
			if verdict == Abort {
				err = fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
			} else {
				err = fetch.ContinueRequest(paused.RequestID).Do(execCtx)
			}
			if err != nil {
				p.logger.Debug("failed to resolve intercepted request", "url", req.URL, "error", err)
			}
		}()
	})

	runCtx, cancel := mergeDeadline(p.ctx, ctx)
	defer cancel()

	err := chromedp.Run(runCtx,
		fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}}),
		chromedp.Navigate(rawURL),
	)

	// No request is resolved after this point; the tab is torn down next.
	mu.Lock()
	done = true
	mu.Unlock()
	pending.Wait()

	if p.cancel != nil {
		p.cancel()
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]Request, len(observed))
	copy(out, observed)

	if err != nil {
		return out, fmt.Errorf("%w %s: %w", ErrNavigate, rawURL, err)
	}
	return out, nil
}

// mergeDeadline derives a context from the chromedp context that is also
// cancelled when ctx is done, so caller timeouts bound browser actions.
func mergeDeadline(chromeCtx, ctx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(chromeCtx)
	stop := context.AfterFunc(ctx, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}
