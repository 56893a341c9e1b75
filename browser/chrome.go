package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/time/rate"

	"github.com/ethereum-optimism/infra/op-uat/locator"
)

var _ Factory = (*ChromeFactory)(nil)

// ChromeFactory starts chromedp sessions, either against a local binary or a
// remote DevTools endpoint.
type ChromeFactory struct {
	cfg     Config
	limiter *rate.Limiter
	log     log.Logger
	seq     atomic.Uint64
}

func NewChromeFactory(cfg Config, logger log.Logger) *ChromeFactory {
	limit := rate.Inf
	if cfg.LaunchRate > 0 {
		limit = rate.Limit(cfg.LaunchRate)
	}
	return &ChromeFactory{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		log:     logger.New("component", "browser"),
	}
}

func (f *ChromeFactory) allocatorOptions() []chromedp.ExecAllocatorOption {
	w, h := f.cfg.windowSize()
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", f.cfg.Headless),
		chromedp.WindowSize(w, h),
	)
	if f.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ChromePath))
	}
	return opts
}

// Create starts a browser tab. The session outlives ctx; it ends on Close.
func (f *ChromeFactory) Create(ctx context.Context) (Session, error) {
	endpoint := f.cfg.Endpoint()
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &SessionCreationError{Endpoint: endpoint, Err: err}
	}

	base := context.WithoutCancel(ctx)
	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if f.cfg.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(base, f.cfg.RemoteURL)
	} else {
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(base, f.allocatorOptions()...)
	}
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser and must use the tab context itself.
	stop := context.AfterFunc(ctx, cancelTab)
	w, h := f.cfg.windowSize()
	err := chromedp.Run(tabCtx, chromedp.EmulateViewport(int64(w), int64(h)))
	if !stop() && err == nil {
		err = context.Cause(ctx)
	}
	if err != nil {
		cancelTab()
		cancelAlloc()
		return nil, &SessionCreationError{Endpoint: endpoint, Err: err}
	}

	id := fmt.Sprintf("chrome-%d", f.seq.Add(1))
	f.log.Debug("Browser session created", "session", id, "endpoint", endpoint, "headless", f.cfg.Headless)
	return &chromeSession{
		id:          id,
		ctx:         tabCtx,
		cancelAlloc: cancelAlloc,
	}, nil
}

type chromeSession struct {
	id          string
	ctx         context.Context
	cancelAlloc context.CancelFunc
	closed      atomic.Bool
}

// run executes actions on the tab while honouring the caller's cancellation.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) ID() string { return s.id }

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *chromeSession) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := s.run(ctx, chromedp.Location(&u))
	return u, err
}

func (s *chromeSession) Title(ctx context.Context) (string, error) {
	var title string
	err := s.run(ctx, chromedp.Title(&title))
	return title, err
}

func (s *chromeSession) Find(ctx context.Context, q locator.Query) (Element, error) {
	var found bool
	if err := s.run(ctx, chromedp.Evaluate(lookupScript(q)+" !== null", &found)); err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &chromeElement{session: s, query: q}, nil
}

func (s *chromeSession) Evaluate(ctx context.Context, script string, res any) error {
	return s.run(ctx, chromedp.Evaluate(script, res))
}

func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = cdppage.CaptureScreenshot().WithFormat(cdppage.CaptureScreenshotFormatPng).Do(ctx)
		return err
	}))
	return buf, err
}

func (s *chromeSession) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	defer s.cancelAlloc()
	return chromedp.Cancel(s.ctx)
}

type chromeElement struct {
	session *chromeSession
	query   locator.Query
}

func (e *chromeElement) Query() locator.Query { return e.query }

func (e *chromeElement) by() chromedp.QueryOption {
	if e.query.Kind == locator.KindXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func (e *chromeElement) Click(ctx context.Context) error {
	return e.session.run(ctx, chromedp.Click(e.query.Expr, e.by()))
}

func (e *chromeElement) Clear(ctx context.Context) error {
	return e.session.run(ctx, chromedp.Clear(e.query.Expr, e.by()))
}

func (e *chromeElement) SendKeys(ctx context.Context, text string) error {
	return e.session.run(ctx, chromedp.SendKeys(e.query.Expr, text, e.by()))
}

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	return e.probe(ctx, "el.innerText ?? el.textContent ?? ''")
}

func (e *chromeElement) Value(ctx context.Context) (string, error) {
	return e.probe(ctx, "el.value ?? ''")
}

func (e *chromeElement) Attribute(ctx context.Context, name string) (string, error) {
	return e.probe(ctx, fmt.Sprintf("el.getAttribute(%s) ?? ''", jsString(name)))
}

func (e *chromeElement) Visible(ctx context.Context) (bool, error) {
	v, err := e.probe(ctx, "!!(el.offsetWidth || el.offsetHeight || el.getClientRects().length) && getComputedStyle(el).visibility !== 'hidden'")
	return v == "true", err
}

func (e *chromeElement) Enabled(ctx context.Context) (bool, error) {
	v, err := e.probe(ctx, "!el.disabled")
	return v == "true", err
}

// probe evaluates expr against the element, bound to el, and returns it as a string.
func (e *chromeElement) probe(ctx context.Context, expr string) (string, error) {
	var res struct {
		Found bool   `json:"found"`
		Value string `json:"value"`
	}
	script := fmt.Sprintf(`(function(el){ if (!el) { return {found: false, value: ""}; } return {found: true, value: String(%s)}; })(%s)`,
		expr, lookupScript(e.query))
	if err := e.session.run(ctx, chromedp.Evaluate(script, &res)); err != nil {
		return "", err
	}
	if !res.Found {
		return "", ErrNotFound
	}
	return res.Value, nil
}

// lookupScript returns a JavaScript expression evaluating to the first match of q or null.
func lookupScript(q locator.Query) string {
	if q.Kind == locator.KindXPath {
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", jsString(q.Expr))
	}
	return fmt.Sprintf("document.querySelector(%s)", jsString(q.Expr))
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
