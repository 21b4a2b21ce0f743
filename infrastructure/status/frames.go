package status

import (
	"context"
	"fmt"
	"strings"
	"time"

	"evalconsole/domain/entities"
	"evalconsole/domain/interfaces"
	"evalconsole/infrastructure/scripts"

	"github.com/sirupsen/logrus"
)

const (
	defaultAttempts = 5
	defaultBackoff  = time.Second
)

// FrameRegister reads and writes the console flags in the frames of a live
// browser. A flag counts as set when any matching frame has it set.
type FrameRegister struct {
	browser   interfaces.Browser
	urlFilter string
	reasonID  string
	attempts  int
	backoff   time.Duration
	logger    *logrus.Logger
}

// NewFrameRegister - urlFilter restricts the register to pages whose URL contains it; empty matches all
func NewFrameRegister(browser interfaces.Browser, urlFilter string, logger *logrus.Logger) *FrameRegister {
	return &FrameRegister{
		browser:   browser,
		urlFilter: urlFilter,
		reasonID:  scripts.DefaultReasonID,
		attempts:  defaultAttempts,
		backoff:   defaultBackoff,
		logger:    logger,
	}
}

// WithRetry - overrides the retry policy of every browser round trip
func (f *FrameRegister) WithRetry(attempts int, backoff time.Duration) *FrameRegister {
	cp := *f
	if attempts < 1 {
		attempts = 1
	}
	cp.attempts = attempts
	cp.backoff = backoff
	return &cp
}

// frames returns every frame of the pages whose URL matches the filter.
// Pages are filtered, not frames, so about:blank and srcdoc iframes of a
// matching page are kept.
func (f *FrameRegister) frames(ctx context.Context) ([]interfaces.Frame, error) {
	all, err := f.browser.Frames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	if f.urlFilter == "" {
		return all, nil
	}
	matched := make([]interfaces.Frame, 0, len(all))
	for _, fr := range all {
		if strings.Contains(fr.PageURL(), f.urlFilter) {
			matched = append(matched, fr)
		}
	}
	return matched, nil
}

func (f *FrameRegister) Set(ctx context.Context, key entities.StatusKey, writer entities.Writer) error {
	if err := checkWriter(key, writer); err != nil {
		return err
	}
	return f.writeAll(ctx, key, true)
}

func (f *FrameRegister) Reset(ctx context.Context, key entities.StatusKey) error {
	if !key.Known() {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return f.writeAll(ctx, key, false)
}

func (f *FrameRegister) writeAll(ctx context.Context, key entities.StatusKey, set bool) error {
	return Retry(ctx, f.attempts, f.backoff, func() error {
		frames, err := f.frames(ctx)
		if err != nil {
			return err
		}
		for _, fr := range frames {
			if _, err := fr.Evaluate(ctx, scripts.WriteFlag(key, set)); err != nil {
				return fmt.Errorf("failed to write %s in frame %s: %w", key, fr.ID(), err)
			}
		}
		return nil
	})
}

func (f *FrameRegister) IsSet(ctx context.Context, key entities.StatusKey) (bool, error) {
	if !key.Known() {
		return false, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	var set bool
	err := Retry(ctx, f.attempts, f.backoff, func() error {
		set = false
		frames, err := f.frames(ctx)
		if err != nil {
			return err
		}
		for _, fr := range frames {
			v, err := fr.Evaluate(ctx, scripts.ReadFlag(key))
			if err != nil {
				return fmt.Errorf("failed to read %s in frame %s: %w", key, fr.ID(), err)
			}
			if truthy(v) {
				set = true
				return nil
			}
		}
		return nil
	})
	return set, err
}

// InfeasibleReason - value of the reason input in the first top frame that has it
func (f *FrameRegister) InfeasibleReason(ctx context.Context) (string, error) {
	frames, err := f.frames(ctx)
	if err != nil {
		return "", err
	}
	for _, fr := range frames {
		if !fr.IsTop() {
			continue
		}
		v, err := fr.Evaluate(ctx, scripts.ReadValue(f.reasonID))
		if err != nil {
			f.logger.WithError(err).Debug("status: reason not readable in frame")
			continue
		}
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return "", nil
}

// truthy follows JS truthiness for the JSON values a frame can return
func truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case string:
		return val != ""
	default:
		return true
	}
}

// Retry runs fn up to attempts times, waiting backoff between failures
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry canceled: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}
	return err
}

var _ interfaces.StatusRegister = (*FrameRegister)(nil)
