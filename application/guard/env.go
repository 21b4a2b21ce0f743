package guard

import (
	"context"
	"time"

	"evalconsole/application/poller"
	"evalconsole/domain/entities"
	"evalconsole/domain/interfaces"
	"evalconsole/infrastructure/logging"
	"evalconsole/infrastructure/scripts"

	"github.com/sirupsen/logrus"
)

// frameEnv evaluates FrameEnv capabilities inside a live frame
type frameEnv struct {
	ctx         context.Context
	frame       interfaces.Frame
	targetFrame string
	interval    time.Duration
	logger      *logrus.Logger
}

var _ interfaces.FrameEnv = (*frameEnv)(nil)

// NewFrameEnv - binds a frame to the target frame id. ctx bounds every
// evaluation and the load watch started by OnFrameReady.
func NewFrameEnv(ctx context.Context, frame interfaces.Frame, targetFrame string, logger *logrus.Logger) interfaces.FrameEnv {
	return &frameEnv{
		ctx:         ctx,
		frame:       frame,
		targetFrame: targetFrame,
		interval:    poller.DefaultInterval,
		logger:      logger,
	}
}

func (e *frameEnv) FrameID() string {
	return e.frame.ID()
}

func (e *frameEnv) IsTargetFrame() bool {
	return !e.frame.IsTop() && e.frame.ID() == e.targetFrame
}

func (e *frameEnv) CanRegisterReady() bool {
	return e.evalBool(scripts.CanRegisterReady())
}

// OnFrameReady hooks the page's after-load registrar and runs cb once the
// hook fired in the frame. Registration failures are logged and cb never runs.
func (e *frameEnv) OnFrameReady(cb func()) {
	if !e.evalBool(scripts.RegisterReady(entities.KeyLoadComplete)) {
		logging.ForFrame(e.logger, e.frame.ID(), "").Warn("load registrar unavailable")
		return
	}

	fired := poller.Cond(func() bool {
		return e.evalBool(scripts.ReadFlag(entities.KeyLoadComplete))
	})
	h, err := poller.WaitFor(e.ctx, fired, e.interval)
	if err != nil {
		logging.ForFrame(e.logger, e.frame.ID(), "").WithError(err).Error("failed to watch frame load")
		return
	}
	go func() {
		if h.Wait(e.ctx) == nil {
			cb()
		}
	}()
}

func (e *frameEnv) Location() string {
	v, err := e.frame.Evaluate(e.ctx, scripts.Location())
	if err != nil {
		return e.frame.URL()
	}
	if loc, ok := v.(string); ok {
		return loc
	}
	return e.frame.URL()
}

func (e *frameEnv) evalBool(expr string) bool {
	v, err := e.frame.Evaluate(e.ctx, expr)
	if err != nil {
		e.logger.Debugf("Evaluation failed in frame %q: %v", e.frame.ID(), err)
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
