package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"evalconsole/application/guard"
	"evalconsole/application/locator"
	"evalconsole/domain/entities"
	"evalconsole/domain/interfaces"
	"evalconsole/infrastructure/browser"
	"evalconsole/infrastructure/config"
	"evalconsole/infrastructure/dom"
	"evalconsole/infrastructure/logging"
	"evalconsole/infrastructure/scripts"
	"evalconsole/infrastructure/status"

	"github.com/sirupsen/logrus"
)

const helpText = `Commands:
  open <url>         navigate and inject the console
  locate <selector>  find an element across shadow roots
  flags              show the console flags
  status <text>      write the console status line
  reset <flag>       clear a console flag
  ready              hook the target frame load event
  protect <url>      report once the target frame loaded at <url>
  snapshot <file>    save the page with its shadow roots
  quit               exit`

type TerminalInterface struct {
	browser  interfaces.Browser
	register *status.FrameRegister
	console  *status.Console
	cfg      *config.Config
	logger   *logrus.Logger
	reader   *bufio.Reader
	out      io.Writer
	injected bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTerminalInterface - launches the configured browser and reads commands from stdin
func NewTerminalInterface(cfg *config.Config, logger *logrus.Logger) (*TerminalInterface, error) {
	consoleLogger := logging.NewFrameLogger(cfg.LogLevel, os.Stderr)
	b, err := browser.Open(cfg, logger, consoleLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}
	return newTerminalInterface(b, cfg, os.Stdin, os.Stdout, logger), nil
}

func newTerminalInterface(b interfaces.Browser, cfg *config.Config, in io.Reader, out io.Writer, logger *logrus.Logger) *TerminalInterface {
	register := status.NewFrameRegister(b, cfg.URLFilter, logger)
	ctx, cancel := context.WithCancel(context.Background())
	return &TerminalInterface{
		browser:  b,
		register: register,
		console:  status.NewConsole(register),
		cfg:      cfg,
		logger:   logger,
		reader:   bufio.NewReader(in),
		out:      out,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (t *TerminalInterface) Run() error {
	fmt.Fprintln(t.out, "Human Evaluation Console")
	fmt.Fprintln(t.out, "========================")
	fmt.Fprintln(t.out, "Type 'help' for commands, or 'quit' to exit")
	fmt.Fprintln(t.out)

	for {
		fmt.Fprint(t.out, "> ")
		input, err := t.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		quit, err := t.Execute(t.ctx, input)
		if err != nil {
			fmt.Fprintf(t.out, "Error: %v\n", err)
		}
		if quit {
			fmt.Fprintln(t.out, "Goodbye!")
			return nil
		}
	}
}

// Execute - runs one command line, reporting whether the session should end
func (t *TerminalInterface) Execute(ctx context.Context, line string) (bool, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "quit", "exit", "q":
		return true, nil
	case "help":
		fmt.Fprintln(t.out, helpText)
		return false, nil
	case "flags":
		return false, t.showFlags(ctx)
	case "ready":
		t.hookReady()
		return false, nil
	}

	if arg == "" {
		return false, fmt.Errorf("%s needs an argument (try 'help')", cmd)
	}

	switch cmd {
	case "open":
		return false, t.open(ctx, arg)
	case "locate":
		return false, t.locate(ctx, arg)
	case "status":
		return false, t.console.SetStatus(ctx, arg)
	case "reset":
		return false, t.register.Reset(ctx, entities.StatusKey(strings.ToUpper(arg)))
	case "protect":
		t.protect(arg)
		return false, nil
	case "snapshot":
		return false, t.snapshot(ctx, arg)
	default:
		return false, fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
}

// open navigates and, the first time, injects the helper scripts and reloads
func (t *TerminalInterface) open(ctx context.Context, url string) error {
	if err := t.browser.Navigate(ctx, url); err != nil {
		return err
	}
	if t.injected {
		return nil
	}

	utilsOpts := scripts.DefaultUtilsOptions()
	utilsOpts.TargetFrame = t.cfg.TargetFrame
	utils, err := scripts.Utils(utilsOpts)
	if err != nil {
		return err
	}
	console, err := scripts.Console(scripts.DefaultConsoleOptions())
	if err != nil {
		return err
	}
	for _, s := range []string{utils, console} {
		if err := t.browser.AddInitScript(ctx, s); err != nil {
			return err
		}
	}
	if err := t.browser.Reload(ctx); err != nil {
		return err
	}
	t.injected = true
	fmt.Fprintln(t.out, "Console injected.")
	if ok, err := t.console.Installed(ctx); err == nil && !ok {
		fmt.Fprintln(t.out, "Console overlay not on the page yet, it appears once the page finishes loading.")
	}
	return nil
}

// locate asks the injected locator of every frame first and falls back to
// a snapshot of the page
func (t *TerminalInterface) locate(ctx context.Context, selector string) error {
	frames, err := t.browser.Frames(ctx)
	if err != nil {
		return err
	}
	for _, fr := range frames {
		v, err := fr.Evaluate(ctx, scripts.LocateOuterHTML(selector))
		if err != nil {
			t.logger.Debugf("Locate failed in frame %q: %v", fr.ID(), err)
			continue
		}
		if html, ok := v.(string); ok {
			fmt.Fprintf(t.out, "[%s] %s\n", fr.ID(), html)
			return nil
		}
	}

	snapshot, err := t.browser.Snapshot(ctx)
	if err != nil {
		return err
	}
	doc, err := dom.ParseString(snapshot)
	if err != nil {
		return err
	}
	el, found, err := locator.NewLocator(doc, t.logger).Locate(selector, nil)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintf(t.out, "No element matches %s\n", selector)
		return nil
	}
	html, err := el.(*dom.Element).OuterHTML()
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out, "[snapshot] %s\n", html)
	return nil
}

func (t *TerminalInterface) showFlags(ctx context.Context) error {
	keys := append(entities.DecisionKeys(), entities.KeyLoadComplete)
	for _, key := range keys {
		set, err := t.register.IsSet(ctx, key)
		if err != nil {
			return err
		}
		fmt.Fprintf(t.out, "%-24s %v\n", key, set)
	}
	reason, err := t.register.InfeasibleReason(ctx)
	if err != nil {
		return err
	}
	if reason != "" {
		fmt.Fprintf(t.out, "%-24s %s\n", "reason", reason)
	}
	return nil
}

// targetRunner - guard runner over the live target frame, nil when absent
func (t *TerminalInterface) targetRunner(ctx context.Context) (*guard.Runner, error) {
	frames, err := t.browser.Frames(ctx)
	if err != nil {
		return nil, err
	}
	for _, fr := range frames {
		env := guard.NewFrameEnv(ctx, fr, t.cfg.TargetFrame, t.logger)
		if env.IsTargetFrame() {
			return guard.NewRunner(env, t.register, t.logger).WithInterval(t.cfg.PollInterval), nil
		}
	}
	return nil, nil
}

// hookReady registers the load hook in the background; 'flags' shows the result
func (t *TerminalInterface) hookReady() {
	t.background("ready", func(ctx context.Context) error {
		r, err := t.targetRunner(ctx)
		if err != nil || r == nil {
			if err == nil {
				err = fmt.Errorf("no %q frame on the page", t.cfg.TargetFrame)
			}
			return err
		}
		_, err = r.RegisterTargetFrameLoaded(ctx)
		return err
	})
}

func (t *TerminalInterface) protect(expected string) {
	t.background("protect", func(ctx context.Context) error {
		r, err := t.targetRunner(ctx)
		if err != nil || r == nil {
			if err == nil {
				err = fmt.Errorf("no %q frame on the page", t.cfg.TargetFrame)
			}
			return err
		}
		ran, err := r.RunInTargetFrameProtectedByURL(ctx, "protect", func() {
			fmt.Fprintf(t.out, "\nTarget frame loaded at %s\n", expected)
		}, expected)
		if err == nil && !ran {
			fmt.Fprintf(t.out, "\nTarget frame is not at %s\n", expected)
		}
		return err
	})
}

func (t *TerminalInterface) background(name string, fn func(ctx context.Context) error) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := fn(t.ctx); err != nil && t.ctx.Err() == nil {
			t.logger.WithError(err).Warnf("%s failed", name)
		}
	}()
}

func (t *TerminalInterface) snapshot(ctx context.Context, path string) error {
	html, err := t.browser.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	fmt.Fprintf(t.out, "Saved %d bytes to %s\n", len(html), path)
	return nil
}

// Close - stops background waits and closes the browser
func (t *TerminalInterface) Close() error {
	t.cancel()
	t.wg.Wait()
	return t.browser.Close()
}
