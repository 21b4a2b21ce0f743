package locator

import (
	"errors"
	"fmt"

	"evalconsole/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// DefaultMaxDepth bounds how many shadow roots may be nested below the search root
const DefaultMaxDepth = 64

var (
	ErrNoRoot   = errors.New("no search root")
	ErrMaxDepth = errors.New("shadow root nesting exceeds depth bound")
)

type Locator struct {
	document interfaces.SearchRoot
	maxDepth int
	logger   *logrus.Logger
}

// NewLocator - creates a locator searching document when no root is given
func NewLocator(document interfaces.SearchRoot, logger *logrus.Logger) *Locator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Locator{
		document: document,
		maxDepth: DefaultMaxDepth,
		logger:   logger,
	}
}

// WithMaxDepth - returns a copy of the locator with another depth bound
func (l *Locator) WithMaxDepth(depth int) *Locator {
	cp := *l
	cp.maxDepth = depth
	return &cp
}

type pendingRoot struct {
	root  interfaces.SearchRoot
	depth int
}

// Locate finds the first element matching selector in root or in any shadow
// root nested below it.
//
// root itself is queried first, so a shallow match always wins. On a miss the
// shadow roots of root's descendants are searched the same way, in document
// order, each one exhausted (its own nested shadow roots included) before the
// next. A nil root searches the locator's document. A miss is reported as
// found == false with a nil error.
//
// Shadow roots nested deeper than the depth bound are skipped, not searched.
// A match anywhere within the bound is still returned; ErrMaxDepth is
// returned only when nothing matched and some root was skipped.
func (l *Locator) Locate(selector string, root interfaces.SearchRoot) (interfaces.Element, bool, error) {
	if root == nil {
		root = l.document
	}
	if root == nil {
		return nil, false, ErrNoRoot
	}

	stack := []pendingRoot{{root: root}}
	visited := make(map[interfaces.SearchRoot]struct{})
	descents := 0
	skipped := 0

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[cur.root]; seen {
			continue
		}
		visited[cur.root] = struct{}{}

		if cur.depth > l.maxDepth {
			skipped++
			continue
		}
		if cur.depth > 0 {
			descents++
		}

		el, err := cur.root.QuerySelector(selector)
		if err != nil {
			return nil, false, fmt.Errorf("failed to query %q: %w", selector, err)
		}
		if el != nil {
			return el, true, nil
		}

		shadows := shadowRoots(cur.root)
		for i := len(shadows) - 1; i >= 0; i-- {
			stack = append(stack, pendingRoot{root: shadows[i], depth: cur.depth + 1})
		}
	}

	l.logger.WithFields(logrus.Fields{
		"selector": selector,
		"descents": descents,
		"skipped":  skipped,
	}).Debug("locator: no match in any shadow root")

	if skipped > 0 {
		return nil, false, fmt.Errorf("%w: %d (%d shadow roots skipped)", ErrMaxDepth, l.maxDepth, skipped)
	}
	return nil, false, nil
}

// shadowRoots returns the attached shadow roots of root's descendants in document order
func shadowRoots(root interfaces.SearchRoot) []interfaces.SearchRoot {
	var roots []interfaces.SearchRoot
	for _, el := range root.Descendants() {
		if sr := el.ShadowRoot(); sr != nil {
			roots = append(roots, sr)
		}
	}
	return roots
}

// Locate - searches root with a default locator
func Locate(selector string, root interfaces.SearchRoot) (interfaces.Element, bool, error) {
	return NewLocator(root, nil).Locate(selector, root)
}
