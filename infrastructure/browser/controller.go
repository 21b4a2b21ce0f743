package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"evalconsole/domain/entities"
	"evalconsole/domain/interfaces"
	"evalconsole/infrastructure/logging"
	"evalconsole/infrastructure/scripts"

	"github.com/playwright-community/playwright-go"
	"github.com/sirupsen/logrus"
)

// Options configures the launched browser
type Options struct {
	Headless bool
	SlowMo   float64
	// ConsoleLogger receives the pages' console output; nil drops it
	ConsoleLogger *logrus.Logger
}

type browserController struct {
	pw         *playwright.Playwright
	browser    playwright.Browser
	page       playwright.Page
	context    playwright.BrowserContext
	pages      []playwright.Page
	pagesMutex sync.Mutex
	logger     *logrus.Logger
	console    *logrus.Logger
}

// NewBrowserController - launches Chromium through playwright
func NewBrowserController(opts Options, logger *logrus.Logger) (interfaces.Browser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		SlowMo:   playwright.Float(opts.SlowMo),
		Args: []string{
			"--disable-popup-blocking",
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--disable-infobars",
			"--disable-notifications",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  1280,
			Height: 720,
		},
		JavaScriptEnabled: playwright.Bool(true),
		IgnoreHttpsErrors: playwright.Bool(true),
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	controller := &browserController{
		pw:      pw,
		browser: browser,
		page:    page,
		context: context,
		pages:   []playwright.Page{page},
		logger:  logger,
		console: opts.ConsoleLogger,
	}
	controller.watchPage(page)

	context.OnPage(func(newPage playwright.Page) {
		controller.pagesMutex.Lock()
		controller.pages = append(controller.pages, newPage)
		controller.page = newPage
		controller.pagesMutex.Unlock()

		controller.watchPage(newPage)
	})

	return controller, nil
}

// watchPage - accepts dialogs, relays console output and tracks closing
func (b *browserController) watchPage(page playwright.Page) {
	page.OnDialog(func(dialog playwright.Dialog) {
		dialog.Accept()
	})

	if b.console != nil {
		page.OnConsole(func(msg playwright.ConsoleMessage) {
			logging.Relay(b.console, entities.TopFrameID, msg.Type(), msg.Text())
		})
	}

	page.OnClose(func(closedPage playwright.Page) {
		b.pagesMutex.Lock()
		defer b.pagesMutex.Unlock()

		for i, p := range b.pages {
			if p == closedPage {
				b.pages = append(b.pages[:i], b.pages[i+1:]...)
				break
			}
		}

		if b.page == closedPage && len(b.pages) > 0 {
			b.page = b.pages[0]
		}
	})
}

func (b *browserController) currentPage() playwright.Page {
	b.pagesMutex.Lock()
	defer b.pagesMutex.Unlock()
	return b.page
}

// Navigate - navigates the current page to the specified URL
func (b *browserController) Navigate(ctx context.Context, url string) error {
	b.logger.Infof("Navigating to: %s", url)

	_, err := b.currentPage().Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(60000),
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// AddInitScript - registers a script for every frame of every page of the context
func (b *browserController) AddInitScript(ctx context.Context, script string) error {
	if err := b.context.AddInitScript(playwright.Script{
		Content: playwright.String(script),
	}); err != nil {
		return fmt.Errorf("failed to add init script: %w", err)
	}
	return nil
}

// Reload - reloads the current page
func (b *browserController) Reload(ctx context.Context) error {
	if _, err := b.currentPage().Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	}); err != nil {
		return fmt.Errorf("failed to reload page: %w", err)
	}
	return nil
}

// Frames - returns every frame of every open page
func (b *browserController) Frames(ctx context.Context) ([]interfaces.Frame, error) {
	b.pagesMutex.Lock()
	pages := append([]playwright.Page(nil), b.pages...)
	b.pagesMutex.Unlock()

	var frames []interfaces.Frame
	for _, p := range pages {
		if p.IsClosed() {
			continue
		}
		for _, f := range p.Frames() {
			frames = append(frames, newPlaywrightFrame(f))
		}
	}
	return frames, nil
}

// Snapshot - serializes the current page with its open shadow roots
func (b *browserController) Snapshot(ctx context.Context) (string, error) {
	result, err := b.currentPage().Evaluate(scripts.Snapshot())
	if err != nil {
		return "", fmt.Errorf("failed to snapshot page: %w", err)
	}
	html, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("unexpected snapshot result %T", result)
	}
	return html, nil
}

// Close - closes the context, the browser and the playwright driver
func (b *browserController) Close() error {
	var closeErr error

	if b.context != nil {
		if err := b.context.Close(); err != nil && !isClosedErr(err) {
			closeErr = fmt.Errorf("failed to close context: %w", err)
		}
		b.context = nil
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil && !isClosedErr(err) {
			if closeErr != nil {
				closeErr = fmt.Errorf("%v; failed to close browser: %w", closeErr, err)
			} else {
				closeErr = fmt.Errorf("failed to close browser: %w", err)
			}
		}
		b.browser = nil
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil && closeErr == nil {
			closeErr = fmt.Errorf("failed to stop playwright: %w", err)
		}
		b.pw = nil
	}

	return closeErr
}

// isClosedErr - errors raised when the target was already gone
func isClosedErr(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "closed") || strings.Contains(errStr, "target closed")
}

type playwrightFrame struct {
	frame playwright.Frame
	id    string
	top   bool
}

func newPlaywrightFrame(f playwright.Frame) *playwrightFrame {
	pf := &playwrightFrame{frame: f, id: entities.TopFrameID}
	if f.ParentFrame() == nil {
		pf.top = true
		return pf
	}

	pf.id = ""
	if el, err := f.FrameElement(); err == nil {
		if id, err := el.GetAttribute("id"); err == nil {
			pf.id = id
		}
	}
	return pf
}

func (f *playwrightFrame) ID() string {
	return f.id
}

func (f *playwrightFrame) URL() string {
	return f.frame.URL()
}

// PageURL - location of the page owning the frame
func (f *playwrightFrame) PageURL() string {
	return f.frame.Page().URL()
}

func (f *playwrightFrame) IsTop() bool {
	return f.top
}

// Evaluate - evaluates a function expression in the frame
func (f *playwrightFrame) Evaluate(ctx context.Context, expression string) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.frame.Evaluate(expression)
}
