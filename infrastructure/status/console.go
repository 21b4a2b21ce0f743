package status

import (
	"context"
	"fmt"

	"evalconsole/infrastructure/scripts"

	"github.com/sirupsen/logrus"
)

// Console writes the overlay's status and progress lines in every top frame
type Console struct {
	register   *FrameRegister
	statusID   string
	progressID string
}

// NewConsole - console writer sharing the frame register's filter and retry policy
func NewConsole(register *FrameRegister) *Console {
	return &Console{
		register:   register,
		statusID:   scripts.DefaultStatusID,
		progressID: scripts.DefaultProgressID,
	}
}

// SetStatus - replaces the status line
func (c *Console) SetStatus(ctx context.Context, text string) error {
	return c.setText(ctx, c.statusID, text)
}

// SetProgress - replaces the progress line
func (c *Console) SetProgress(ctx context.Context, text string) error {
	return c.setText(ctx, c.progressID, text)
}

func (c *Console) setText(ctx context.Context, id, text string) error {
	r := c.register
	return Retry(ctx, r.attempts, r.backoff, func() error {
		frames, err := r.frames(ctx)
		if err != nil {
			return err
		}
		for _, fr := range frames {
			if !fr.IsTop() {
				continue
			}
			if _, err := fr.Evaluate(ctx, scripts.SetText(id, text)); err != nil {
				return fmt.Errorf("failed to set #%s: %w", id, err)
			}
		}
		return nil
	})
}

// Installed - reports whether the overlay is present in any top frame
func (c *Console) Installed(ctx context.Context) (bool, error) {
	frames, err := c.register.frames(ctx)
	if err != nil {
		return false, err
	}
	for _, fr := range frames {
		if !fr.IsTop() {
			continue
		}
		v, err := fr.Evaluate(ctx, scripts.ElementExists(scripts.DefaultPanelID))
		if err != nil {
			c.register.logger.WithFields(logrus.Fields{"frame": fr.ID()}).WithError(err).Debug("status: console check failed")
			continue
		}
		if truthy(v) {
			return true, nil
		}
	}
	return false, nil
}
