package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"evalconsole/domain/entities"
	"evalconsole/domain/interfaces"
	"evalconsole/infrastructure/logging"
	"evalconsole/infrastructure/scripts"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/sirupsen/logrus"
)

// RodOptions configures the rod backend
type RodOptions struct {
	Options
	// RemoteURL attaches to a running Chrome instead of launching one
	RemoteURL string
	// Stealth opens the page with the evasion scripts applied
	Stealth bool
}

// findChromeBinary - finds a local Chrome or Chromium binary, empty lets rod download one
func findChromeBinary() string {
	if path := os.Getenv("CHROME_BINARY_PATH"); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	for _, name := range []string{"google-chrome", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	if path, found := launcher.LookPath(); found {
		return path
	}
	return ""
}

type rodController struct {
	browser *rod.Browser
	pages   *pageSet
	lnch    *launcher.Launcher
	logger  *logrus.Logger
	console *logrus.Logger
	stealth bool

	scriptsMu   sync.Mutex
	initScripts []string

	ctx    context.Context
	cancel context.CancelFunc
}

// pageSet tracks the open pages by target id. The most recently opened page
// is current, like a tab the user just opened.
type pageSet struct {
	mu      sync.Mutex
	pages   []*rod.Page
	current *rod.Page
}

// add - registers p, reporting false when its target is already tracked
func (s *pageSet) add(p *rod.Page) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, known := range s.pages {
		if known.TargetID == p.TargetID {
			return false
		}
	}
	s.pages = append(s.pages, p)
	s.current = p
	return true
}

func (s *pageSet) remove(id proto.TargetTargetID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.pages {
		if p.TargetID == id {
			s.pages = append(s.pages[:i], s.pages[i+1:]...)
			break
		}
	}
	if s.current != nil && s.current.TargetID == id {
		s.current = nil
		if len(s.pages) > 0 {
			s.current = s.pages[0]
		}
	}
}

func (s *pageSet) all() []*rod.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*rod.Page(nil), s.pages...)
}

func (s *pageSet) page() *rod.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// NewRodController - launches (or attaches to) Chrome through the DevTools protocol
func NewRodController(opts RodOptions, logger *logrus.Logger) (interfaces.Browser, error) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &rodController{
		pages:   &pageSet{},
		logger:  logger,
		console: opts.ConsoleLogger,
		stealth: opts.Stealth,
		ctx:     ctx,
		cancel:  cancel,
	}

	wsURL := opts.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(opts.Headless).
			Set("disable-blink-features", "AutomationControlled").
			Set("disable-popup-blocking").
			Set("disable-dev-shm-usage").
			Set("ignore-certificate-errors")
		if bin := findChromeBinary(); bin != "" {
			logger.Infof("Using Chrome binary: %s", bin)
			l = l.Bin(bin)
		}

		u, err := l.Launch()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to launch chrome: %w", err)
		}
		wsURL = u
		r.lnch = l
	} else {
		logger.Infof("Connecting to remote chrome: %s", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if opts.SlowMo > 0 {
		b = b.SlowMotion(time.Duration(opts.SlowMo) * time.Millisecond)
	}
	if err := b.Connect(); err != nil {
		r.cleanup()
		return nil, fmt.Errorf("failed to connect to chrome: %w", err)
	}
	r.browser = b

	if err := b.IgnoreCertErrors(true); err != nil {
		logger.Warnf("Failed to ignore certificate errors: %v", err)
	}
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(b); err != nil {
		r.cleanup()
		return nil, fmt.Errorf("failed to watch targets: %w", err)
	}
	r.watchTargets()

	var page *rod.Page
	var err error
	if opts.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		r.cleanup()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	if r.pages.add(page) {
		r.watchPage(page)
	}
	return r, nil
}

// watchTargets - adopts pages opened by the application (window.open, target=_blank)
// and forgets closed ones
func (r *rodController) watchTargets() {
	go r.browser.Context(r.ctx).EachEvent(func(e *proto.TargetTargetCreated) {
		if e.TargetInfo.Type != proto.TargetTargetInfoTypePage {
			return
		}
		go r.adopt(e.TargetInfo.TargetID)
	}, func(e *proto.TargetTargetDestroyed) {
		r.pages.remove(e.TargetID)
	})()
}

// adopt - tracks a new page and applies every registered init script to it
func (r *rodController) adopt(id proto.TargetTargetID) {
	page, err := r.browser.PageFromTarget(id)
	if err != nil {
		r.logger.Debugf("Failed to attach to target %s: %v", id, err)
		return
	}
	if !r.pages.add(page) {
		return
	}
	r.logger.Debugf("Tracking new page %s", id)

	pending := r.scripts()
	if r.stealth {
		pending = append([]string{stealth.JS}, pending...)
	}
	for _, script := range pending {
		if _, err := page.Context(r.ctx).EvalOnNewDocument(script); err != nil {
			r.logger.Warnf("Failed to add init script to page %s: %v", id, err)
			continue
		}
		// the document may already be past the point where new-document scripts run
		if _, err := (proto.RuntimeEvaluate{Expression: script}).Call(page); err != nil {
			r.logger.Debugf("Init script not applied to the loaded document of %s: %v", id, err)
		}
	}
	r.watchPage(page)
}

func (r *rodController) scripts() []string {
	r.scriptsMu.Lock()
	defer r.scriptsMu.Unlock()
	return append([]string(nil), r.initScripts...)
}

// watchPage - sets the viewport, accepts dialogs and relays console output
func (r *rodController) watchPage(page *rod.Page) {
	if err := (proto.EmulationSetDeviceMetricsOverride{Width: 1280, Height: 720, DeviceScaleFactor: 1}).Call(page); err != nil {
		r.logger.Warnf("Failed to set viewport: %v", err)
	}

	p := page.Context(r.ctx)
	go p.EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		_ = proto.PageHandleJavaScriptDialog{Accept: true}.Call(p)
	}, func(e *proto.RuntimeConsoleAPICalled) {
		if r.console == nil {
			return
		}
		logging.Relay(r.console, entities.TopFrameID, string(e.Type), consoleText(e.Args))
	})()
}

// consoleText - joins console arguments the way DevTools prints them
func consoleText(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case arg.Type == proto.RuntimeRemoteObjectTypeString:
			parts = append(parts, arg.Value.Str())
		case arg.Description != "":
			parts = append(parts, arg.Description)
		default:
			parts = append(parts, arg.Value.String())
		}
	}
	return strings.Join(parts, " ")
}

// Navigate - navigates the page and waits for the load event
func (r *rodController) Navigate(ctx context.Context, url string) error {
	r.logger.Infof("Navigating to: %s", url)

	navCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	page := r.pages.page().Context(navCtx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		r.logger.Warnf("Wait load timeout for %s: %v", url, err)
	}
	return nil
}

// AddInitScript - registers a script evaluated in every new document of every
// open page and of pages opened later
func (r *rodController) AddInitScript(ctx context.Context, script string) error {
	r.scriptsMu.Lock()
	r.initScripts = append(r.initScripts, script)
	r.scriptsMu.Unlock()

	for _, page := range r.pages.all() {
		if _, err := page.Context(ctx).EvalOnNewDocument(script); err != nil {
			return fmt.Errorf("failed to add init script: %w", err)
		}
	}
	return nil
}

// Reload - reloads the current page so registered init scripts apply
func (r *rodController) Reload(ctx context.Context) error {
	page := r.pages.page().Context(ctx)
	if err := page.Reload(); err != nil {
		return fmt.Errorf("failed to reload page: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		r.logger.Warnf("Wait load timeout after reload: %v", err)
	}
	return nil
}

// Frames - returns, page by page, the top frame followed by every nested
// iframe, depth first
func (r *rodController) Frames(ctx context.Context) ([]interfaces.Frame, error) {
	var frames []interfaces.Frame
	for _, page := range r.pages.all() {
		pageFrames, err := r.pageFrames(ctx, page)
		if err != nil {
			if isClosedErr(err) {
				continue
			}
			return nil, err
		}
		frames = append(frames, pageFrames...)
	}
	return frames, nil
}

func (r *rodController) pageFrames(ctx context.Context, page *rod.Page) ([]interfaces.Frame, error) {
	top := newRodFrame(ctx, page.Context(ctx), entities.TopFrameID, true, "")
	frames := []interfaces.Frame{top}

	var walk func(p *rod.Page) error
	walk = func(p *rod.Page) error {
		els, err := p.Context(ctx).Elements("iframe, frame")
		if err != nil {
			return err
		}
		for _, el := range els {
			child, err := el.Frame()
			if err != nil {
				r.logger.Debugf("Skipping detached frame: %v", err)
				continue
			}
			id := ""
			if attr, err := el.Attribute("id"); err == nil && attr != nil {
				id = *attr
			}
			frames = append(frames, newRodFrame(ctx, child, id, false, top.url))
			if err := walk(child); err != nil {
				r.logger.Debugf("Failed to walk frame %q: %v", id, err)
			}
		}
		return nil
	}

	if err := walk(page); err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	return frames, nil
}

// Snapshot - serializes the page with its open shadow roots
func (r *rodController) Snapshot(ctx context.Context) (string, error) {
	res, err := r.pages.page().Context(ctx).Eval(scripts.Snapshot())
	if err != nil {
		return "", fmt.Errorf("failed to snapshot page: %w", err)
	}
	return res.Value.Str(), nil
}

// Close - closes the browser and cleans up the launched process
func (r *rodController) Close() error {
	return r.cleanup()
}

func (r *rodController) cleanup() error {
	r.cancel()
	var closeErr error
	if r.browser != nil {
		if err := r.browser.Close(); err != nil && !isClosedErr(err) {
			closeErr = fmt.Errorf("failed to close browser: %w", err)
		}
		r.browser = nil
	}
	if r.lnch != nil {
		r.lnch.Cleanup()
		r.lnch = nil
	}
	return closeErr
}

type rodFrame struct {
	page    *rod.Page
	id      string
	url     string
	pageURL string
	top     bool
}

// newRodFrame - pageURL is the location of the owning page, empty for a top frame
func newRodFrame(ctx context.Context, page *rod.Page, id string, top bool, pageURL string) *rodFrame {
	f := &rodFrame{page: page, id: id, top: top}
	if res, err := page.Context(ctx).Eval(scripts.Location()); err == nil {
		f.url = res.Value.Str()
	}
	f.pageURL = pageURL
	if top {
		f.pageURL = f.url
	}
	return f
}

func (f *rodFrame) ID() string {
	return f.id
}

func (f *rodFrame) URL() string {
	return f.url
}

func (f *rodFrame) PageURL() string {
	return f.pageURL
}

func (f *rodFrame) IsTop() bool {
	return f.top
}

// Evaluate - evaluates a function expression in the frame
func (f *rodFrame) Evaluate(ctx context.Context, expression string) (interface{}, error) {
	res, err := f.page.Context(ctx).Eval(expression)
	if err != nil {
		return nil, err
	}
	return res.Value.Val(), nil
}
