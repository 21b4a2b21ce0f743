// Package evaluation drives a human annotator through a curriculum of tasks,
// polling the console flags of the live page and logging one result per task.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"evalconsole/application/poller"
	"evalconsole/domain/entities"
	"evalconsole/domain/interfaces"
	"evalconsole/infrastructure/scripts"
	"evalconsole/infrastructure/status"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	StatusValidating     = "Validation in progress..."
	StatusSuccess        = "Success!"
	StatusStopRequired   = "Task not completed. Stop required."
	StatusKeepGoing      = "Task not completed. Keep going."
	StatusInfeasible     = "Task marked as infeasible."
	StatusAbandoned      = "Task abandoned by human."
	StatusCleaning       = "Cleaning environment. This may take a while..."
	defaultLinger        = 3 * time.Second
	defaultRetryAttempts = 5
	defaultRetryBackoff  = time.Second
)

// BrowserFactory opens a fresh browser for one task
type BrowserFactory func(ctx context.Context) (interfaces.Browser, error)

// Options tunes the evaluation loop
type Options struct {
	URLFilter     string
	PollInterval  time.Duration
	Linger        time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	Console       scripts.ConsoleOptions
	Utils         scripts.UtilsOptions
}

// DefaultOptions - 100ms polling, 3s linger, 5 x 1s retries
func DefaultOptions() Options {
	return Options{
		PollInterval:  poller.DefaultInterval,
		Linger:        defaultLinger,
		RetryAttempts: defaultRetryAttempts,
		RetryBackoff:  defaultRetryBackoff,
		Console:       scripts.DefaultConsoleOptions(),
		Utils:         scripts.DefaultUtilsOptions(),
	}
}

// Summary counts the outcomes of a curriculum run
type Summary struct {
	Total      int
	Skipped    int
	Succeeded  int
	Failed     int
	Abandoned  int
	Infeasible int
}

type Runner struct {
	open      BrowserFactory
	store     interfaces.ResultStore
	validator interfaces.Validator
	annotator entities.Annotator
	opts      Options
	logger    *logrus.Logger
}

// NewRunner - creates an evaluation runner for one annotator
func NewRunner(open BrowserFactory, store interfaces.ResultStore, validator interfaces.Validator, annotator entities.Annotator, opts Options, logger *logrus.Logger) *Runner {
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	return &Runner{
		open:      open,
		store:     store,
		validator: validator,
		annotator: annotator,
		opts:      opts,
		logger:    logger,
	}
}

// Run - evaluates every task not yet logged for the annotator
func (r *Runner) Run(ctx context.Context, curriculum []entities.Task) (Summary, error) {
	summary := Summary{Total: len(curriculum)}
	r.logger.Infof("Starting evaluation for %d tasks", len(curriculum))

	for i, task := range curriculum {
		select {
		case <-ctx.Done():
			return summary, fmt.Errorf("evaluation canceled: %w", ctx.Err())
		default:
		}

		done, err := r.store.AlreadyEvaluated(r.annotator, task)
		if err != nil {
			return summary, fmt.Errorf("failed to check result log: %w", err)
		}
		if done {
			r.logger.Infof("Task %s (seed %d) already evaluated. Skipping.", task.Name, task.Seed)
			summary.Skipped++
			continue
		}

		result, err := r.Evaluate(ctx, task, i+1, len(curriculum))
		if err != nil {
			return summary, fmt.Errorf("failed to evaluate %s: %w", task.Name, err)
		}

		switch result.Metrics.Outcome() {
		case entities.TaskStatusCompleted:
			summary.Succeeded++
		case entities.TaskStatusAbandoned:
			summary.Abandoned++
		default:
			summary.Failed++
		}
		if result.Metrics.Infeasible != nil {
			summary.Infeasible++
		}
	}

	return summary, nil
}

// episode is the loop state of one task
type episode struct {
	task     entities.Task
	index    int
	total    int
	browser  interfaces.Browser
	register *status.FrameRegister
	console  *status.Console
	start    time.Time
	metrics  entities.Metrics
	end      bool
}

// Evaluate - runs one task until success, a required stop or abandonment, then logs it
func (r *Runner) Evaluate(ctx context.Context, task entities.Task, index, total int) (entities.Result, error) {
	r.logger.Infof("Setting up environment for task %s (seed %d)", task.Name, task.Seed)

	browser, err := r.open(ctx)
	if err != nil {
		return entities.Result{}, fmt.Errorf("failed to open browser: %w", err)
	}
	defer browser.Close()

	if err := r.setup(ctx, browser, task); err != nil {
		return entities.Result{}, err
	}

	register := status.NewFrameRegister(browser, r.opts.URLFilter, r.logger).
		WithRetry(r.opts.RetryAttempts, r.opts.RetryBackoff)
	ep := &episode{
		task:     task,
		index:    index,
		total:    total,
		browser:  browser,
		register: register,
		console:  status.NewConsole(register),
		start:    time.Now(),
	}

	r.logger.Infof("Starting evaluation for task %s", task.Name)
	for {
		if err := r.step(ctx, ep); err != nil {
			return entities.Result{}, err
		}
		if ep.end {
			break
		}
		if err := poller.Until(ctx, r.pending(ctx, ep), r.opts.PollInterval); err != nil {
			return entities.Result{}, fmt.Errorf("failed to wait for console: %w", err)
		}
	}

	result, err := r.finish(ctx, ep)
	if err != nil {
		return entities.Result{}, err
	}

	if err := ep.console.SetStatus(ctx, StatusCleaning); err != nil {
		r.logger.Warnf("Failed to set console status: %v", err)
	}
	r.logger.Infof("Finished evaluation for task %s: %s", task.Name, result.Metrics.Outcome())
	return result, nil
}

// setup injects the harness scripts and reloads so they apply to every frame
func (r *Runner) setup(ctx context.Context, browser interfaces.Browser, task entities.Task) error {
	if task.StartURL != "" {
		if err := browser.Navigate(ctx, task.StartURL); err != nil {
			return err
		}
	}

	utils, err := scripts.Utils(r.opts.Utils)
	if err != nil {
		return fmt.Errorf("failed to render utils: %w", err)
	}
	console, err := scripts.Console(r.opts.Console)
	if err != nil {
		return fmt.Errorf("failed to render console: %w", err)
	}

	for _, script := range []string{scripts.PresetFlag(entities.KeyNeedValidation), utils, console} {
		if err := browser.AddInitScript(ctx, script); err != nil {
			return err
		}
	}
	return browser.Reload(ctx)
}

// pending refreshes the progress line and reports whether any decision flag is up
func (r *Runner) pending(ctx context.Context, ep *episode) poller.Predicate {
	return func() (bool, error) {
		r.setProgress(ctx, ep)
		for _, key := range entities.DecisionKeys() {
			set, err := ep.register.IsSet(ctx, key)
			if err != nil {
				return false, err
			}
			if set {
				return true, nil
			}
		}
		return false, nil
	}
}

func (r *Runner) setProgress(ctx context.Context, ep *episode) {
	if err := ep.console.SetProgress(ctx, ProgressText(ep.index, ep.total, time.Since(ep.start))); err != nil {
		r.logger.Warnf("Failed to set console progress: %v", err)
	}
}

// step handles the flags raised since the last tick
func (r *Runner) step(ctx context.Context, ep *episode) error {
	r.setProgress(ctx, ep)

	infeasible, err := ep.register.IsSet(ctx, entities.KeyHumanInfeasible)
	if err != nil {
		return err
	}
	if infeasible && ep.metrics.Infeasible == nil {
		reason, err := ep.register.InfeasibleReason(ctx)
		if err != nil {
			return err
		}
		r.logger.Infof("Human marked task as infeasible. Reason: %s", reason)
		ep.metrics.Infeasible = &reason
		r.setStatus(ctx, ep, StatusInfeasible)
	}

	validate, err := ep.register.IsSet(ctx, entities.KeyNeedValidation)
	if err != nil {
		return err
	}
	if validate {
		if err := r.validate(ctx, ep); err != nil {
			return err
		}
	}

	abandoned, err := ep.register.IsSet(ctx, entities.KeyHumanAbandon)
	if err != nil {
		return err
	}
	if abandoned {
		ep.end = true
		ep.metrics.Success = false
		r.setStatus(ctx, ep, StatusAbandoned)
	}
	return nil
}

func (r *Runner) validate(ctx context.Context, ep *episode) error {
	r.setStatus(ctx, ep, StatusValidating)

	var verdict entities.Verdict
	err := status.Retry(ctx, r.opts.RetryAttempts, r.opts.RetryBackoff, func() error {
		var err error
		verdict, err = r.validator.Validate(ctx, ep.task, ep.browser)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to validate: %w", err)
	}
	r.logger.Infof("Validation: %s -- reward: %v -- stop: %v", verdict.Message, verdict.Reward, verdict.Stop)
	if verdict.Message != "" {
		ep.metrics.Messages = append(ep.metrics.Messages, verdict.Message)
	}

	switch {
	case verdict.Succeeded():
		r.setStatus(ctx, ep, StatusSuccess)
		ep.end = true
		ep.metrics.Success = true
	case verdict.Stop:
		r.setStatus(ctx, ep, StatusStopRequired)
		ep.end = true
		ep.metrics.Success = false
	default:
		r.setStatus(ctx, ep, StatusKeepGoing)
	}

	return ep.register.Reset(ctx, entities.KeyNeedValidation)
}

func (r *Runner) setStatus(ctx context.Context, ep *episode, text string) {
	if err := ep.console.SetStatus(ctx, text); err != nil {
		r.logger.Warnf("Failed to set console status: %v", err)
	}
}

// finish logs the result and lingers so the annotator can read the status
func (r *Runner) finish(ctx context.Context, ep *episode) (entities.Result, error) {
	abandoned, err := ep.register.IsSet(ctx, entities.KeyHumanAbandon)
	if err != nil {
		return entities.Result{}, err
	}
	ep.metrics.Abandoned = abandoned
	ep.metrics.Duration = time.Since(ep.start).Seconds()

	result := entities.Result{
		EpisodeID: uuid.NewString(),
		Annotator: r.annotator,
		Task:      ep.task,
		Metrics:   ep.metrics,
	}
	if err := r.store.Append(result); err != nil {
		return entities.Result{}, fmt.Errorf("failed to log result: %w", err)
	}

	if r.opts.Linger > 0 {
		select {
		case <-ctx.Done():
			return result, fmt.Errorf("evaluation canceled: %w", ctx.Err())
		case <-time.After(r.opts.Linger):
		}
	}
	return result, nil
}

// ProgressText - the console progress line
func ProgressText(index, total int, elapsed time.Duration) string {
	return fmt.Sprintf("Task %d / %d --- Elapsed: %.2f sec.", index, total, elapsed.Seconds())
}

// IsCanceled reports whether err came from a canceled evaluation
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
