package inputguard

import (
	"context"
	"fmt"
	"os"

	"evalconsole/domain/entities"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Policy selects which browser default behaviors the console suppresses
// document-wide. Suppressing them keeps the human inside tabs that carry the
// console.
type Policy struct {
	ContextMenu   bool `yaml:"context_menu"`
	ModifierClick bool `yaml:"modifier_click"`
	MiddleClick   bool `yaml:"middle_click"`
}

// DefaultPolicy - suppresses everything
func DefaultPolicy() Policy {
	return Policy{
		ContextMenu:   true,
		ModifierClick: true,
		MiddleClick:   true,
	}
}

// LoadPolicy - reads a YAML policy; keys left out keep their default
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to decode policy: %w", err)
	}
	return p, nil
}

// Suppresses - reports whether the event's default action is prevented
func (p Policy) Suppresses(ev entities.PointerEvent) bool {
	switch ev.Type {
	case entities.EventContextMenu:
		return p.ContextMenu
	case entities.EventClick:
		return p.ModifierClick && (ev.MetaKey || ev.CtrlKey)
	case entities.EventAuxClick:
		return p.MiddleClick && ev.Button == entities.ButtonMiddle
	}
	return false
}

// Any - reports whether at least one behavior is suppressed
func (p Policy) Any() bool {
	return p.ContextMenu || p.ModifierClick || p.MiddleClick
}

type Guard struct {
	policy Policy
	logger *logrus.Logger
}

func NewGuard(policy Policy, logger *logrus.Logger) *Guard {
	return &Guard{
		policy: policy,
		logger: logger,
	}
}

// Policy - returns the policy rendered into the console script
func (g *Guard) Policy() Policy {
	return g.policy
}

// ShouldSuppress - checks an event reported by the page against the policy
func (g *Guard) ShouldSuppress(ctx context.Context, ev entities.PointerEvent) bool {
	suppress := g.policy.Suppresses(ev)
	if suppress {
		g.logger.WithFields(logrus.Fields{
			"event":  ev.Type,
			"button": ev.Button,
		}).Debug("inputguard: default action suppressed")
	}
	return suppress
}
