// Package guard gates task-script callbacks on the frame they run in, the
// frame's load state and the current location. Everything here is a thin
// composition of the condition poller over a FrameEnv.
package guard

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"evalconsole/application/poller"
	"evalconsole/domain/entities"
	"evalconsole/domain/interfaces"
	"evalconsole/infrastructure/logging"

	"github.com/sirupsen/logrus"
)

const blankLocation = "about:blank"

type Runner struct {
	env      interfaces.FrameEnv
	register interfaces.StatusRegister
	interval time.Duration
	logger   *logrus.Logger
}

// NewRunner - register holds the load-complete flag of env's frame
func NewRunner(env interfaces.FrameEnv, register interfaces.StatusRegister, logger *logrus.Logger) *Runner {
	return &Runner{
		env:      env,
		register: register,
		interval: poller.DefaultInterval,
		logger:   logger,
	}
}

// WithInterval - returns a copy polling at another interval
func (r *Runner) WithInterval(interval time.Duration) *Runner {
	cp := *r
	cp.interval = interval
	return &cp
}

func (r *Runner) log(caller string) *logrus.Entry {
	return logging.ForFrame(r.logger, r.env.FrameID(), caller)
}

// RegisterTargetFrameLoaded waits for the page-loaded registrar of the target
// frame and hooks it so the load-complete flag is set once loading finishes.
// Outside the target frame it returns false without waiting.
func (r *Runner) RegisterTargetFrameLoaded(ctx context.Context) (bool, error) {
	if !r.env.IsTargetFrame() {
		return false, nil
	}

	if err := poller.Until(ctx, poller.Cond(r.env.CanRegisterReady), r.interval); err != nil {
		return false, fmt.Errorf("failed to wait for load registrar: %w", err)
	}

	r.env.OnFrameReady(func() {
		if err := r.register.Set(ctx, entities.KeyLoadComplete, entities.WriterFrameLoadHook); err != nil {
			r.log("").WithError(err).Error("failed to set load flag")
			return
		}
		r.log("").Info("target frame load completed.")
	})
	r.log("").Info("registered to target frame afterload event.")

	return true, nil
}

// RunOnlyInTargetFrame runs fn once the target frame finished loading. It
// returns false without running fn in any other frame.
func (r *Runner) RunOnlyInTargetFrame(ctx context.Context, name string, fn func()) (bool, error) {
	if !r.env.IsTargetFrame() {
		return false, nil
	}
	r.log(name).Info("target frame detected. Proceeding...")

	loaded := func() (bool, error) {
		return r.register.IsSet(ctx, entities.KeyLoadComplete)
	}
	if err := poller.Until(ctx, loaded, r.interval); err != nil {
		return false, fmt.Errorf("failed to wait for target frame load: %w", err)
	}

	r.log(name).Info("target frame has finished loading. Proceeding...")
	fn()
	return true, nil
}

// ProtectByURL waits until the frame navigated away from about:blank, then
// reports whether its decoded location contains the decoded expected URL.
func (r *Runner) ProtectByURL(ctx context.Context, name, expected string) (bool, error) {
	navigated := func() bool {
		loc := r.env.Location()
		return loc != "" && loc != blankLocation
	}
	if err := poller.Until(ctx, poller.Cond(navigated), r.interval); err != nil {
		return false, fmt.Errorf("failed to wait for navigation: %w", err)
	}

	ok, err := URLMatches(r.env.Location(), expected)
	if err != nil {
		return false, err
	}
	if ok {
		r.log(name).Info("URL is valid. Proceeding...")
	}
	return ok, nil
}

// RunInTargetFrameProtectedByURL runs fn in the target frame only when the
// location matches expected
func (r *Runner) RunInTargetFrameProtectedByURL(ctx context.Context, name string, fn func(), expected string) (bool, error) {
	ok, err := r.ProtectByURL(ctx, name, expected)
	if err != nil || !ok {
		return false, err
	}
	return r.RunOnlyInTargetFrame(ctx, name, fn)
}

// URLMatches - percent-decodes both URLs and checks containment
func URLMatches(current, expected string) (bool, error) {
	cur, err := url.PathUnescape(current)
	if err != nil {
		return false, fmt.Errorf("failed to decode location %q: %w", current, err)
	}
	exp, err := url.PathUnescape(expected)
	if err != nil {
		return false, fmt.Errorf("failed to decode expected url %q: %w", expected, err)
	}
	return strings.Contains(cur, exp), nil
}
