package evaluation

import (
	"context"
	"fmt"
	"strings"

	"evalconsole/application/locator"
	"evalconsole/domain/entities"
	"evalconsole/domain/interfaces"
	"evalconsole/infrastructure/dom"

	"github.com/sirupsen/logrus"
)

// SnapshotValidator validates a task by locating its success selector in a
// shadow-aware snapshot of the page. Tasks without a selector are attested
// by the annotator pressing Validate.
type SnapshotValidator struct {
	selectors *dom.SelectorCache
	logger    *logrus.Logger
}

var _ interfaces.Validator = (*SnapshotValidator)(nil)

// NewSnapshotValidator - selectors may be nil to use the shared cache
func NewSnapshotValidator(selectors *dom.SelectorCache, logger *logrus.Logger) *SnapshotValidator {
	return &SnapshotValidator{selectors: selectors, logger: logger}
}

func (v *SnapshotValidator) Validate(ctx context.Context, task entities.Task, browser interfaces.Browser) (entities.Verdict, error) {
	if task.SuccessSelector == "" {
		return entities.Verdict{Reward: 1, Message: "attested by annotator"}, nil
	}

	snapshot, err := browser.Snapshot(ctx)
	if err != nil {
		return entities.Verdict{}, fmt.Errorf("failed to snapshot page: %w", err)
	}
	return v.check(task.SuccessSelector, snapshot)
}

func (v *SnapshotValidator) check(selector, snapshot string) (entities.Verdict, error) {
	doc, err := dom.ParseWithCache(strings.NewReader(snapshot), v.selectors)
	if err != nil {
		return entities.Verdict{}, err
	}

	el, found, err := locator.NewLocator(doc, v.logger).Locate(selector, nil)
	if err != nil {
		return entities.Verdict{}, fmt.Errorf("failed to locate %q: %w", selector, err)
	}
	if !found {
		return entities.Verdict{Message: fmt.Sprintf("%s not found", selector)}, nil
	}

	msg := fmt.Sprintf("%s found", selector)
	if e, ok := el.(*dom.Element); ok {
		msg = fmt.Sprintf("<%s> matching %s found", e.Tag(), selector)
	}
	return entities.Verdict{Reward: 1, Message: msg}, nil
}
