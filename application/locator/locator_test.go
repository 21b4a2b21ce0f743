package locator

import (
	"errors"
	"testing"

	"evalconsole/domain/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeElement struct {
	name      string
	selectors []string
	shadow    *fakeRoot
}

func (e *fakeElement) ShadowRoot() interfaces.SearchRoot {
	if e.shadow == nil {
		return nil
	}
	return e.shadow
}

// fakeRoot keeps its light elements flattened in document order
type fakeRoot struct {
	elements []*fakeElement
	queries  *int
	err      error
}

func (r *fakeRoot) QuerySelector(selector string) (interfaces.Element, error) {
	if r.queries != nil {
		*r.queries++
	}
	if r.err != nil {
		return nil, r.err
	}
	for _, el := range r.elements {
		for _, s := range el.selectors {
			if s == selector {
				return el, nil
			}
		}
	}
	return nil, nil
}

func (r *fakeRoot) Descendants() []interfaces.Element {
	out := make([]interfaces.Element, 0, len(r.elements))
	for _, el := range r.elements {
		out = append(out, el)
	}
	return out
}

func el(name string, selectors ...string) *fakeElement {
	return &fakeElement{name: name, selectors: selectors}
}

func host(name string, shadow *fakeRoot, selectors ...string) *fakeElement {
	return &fakeElement{name: name, selectors: selectors, shadow: shadow}
}

func TestLocate_NestedShadowMatch(t *testing.T) {
	shadow := &fakeRoot{elements: []*fakeElement{el("p", "p", ".target")}}
	doc := &fakeRoot{elements: []*fakeElement{
		el("div#a", "div", "#a"),
		host("span", shadow, "span"),
	}}

	got, found, err := Locate(".target", doc)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "p", got.(*fakeElement).name)

	got, found, err = Locate("#missing", doc)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestLocate_ShallowMatchWins(t *testing.T) {
	shadow := &fakeRoot{elements: []*fakeElement{el("nested", ".item")}}
	doc := &fakeRoot{elements: []*fakeElement{
		host("host", shadow),
		el("shallow", ".item"),
	}}

	got, found, err := Locate(".item", doc)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "shallow", got.(*fakeElement).name)
}

func TestLocate_DepthFirstDocumentOrder(t *testing.T) {
	deep := &fakeRoot{elements: []*fakeElement{el("deep-in-first", ".x")}}
	first := &fakeRoot{elements: []*fakeElement{host("inner", deep)}}
	second := &fakeRoot{elements: []*fakeElement{el("in-second", ".x")}}
	doc := &fakeRoot{elements: []*fakeElement{
		host("h1", first),
		host("h2", second),
	}}

	got, found, err := Locate(".x", doc)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "deep-in-first", got.(*fakeElement).name)
}

func TestLocate_MissDescentsBoundedByHosts(t *testing.T) {
	queries := 0
	leaf := &fakeRoot{elements: []*fakeElement{el("leaf")}, queries: &queries}
	mid := &fakeRoot{elements: []*fakeElement{host("h3", leaf)}, queries: &queries}
	side := &fakeRoot{elements: []*fakeElement{el("plain")}, queries: &queries}
	doc := &fakeRoot{elements: []*fakeElement{
		host("h1", mid),
		el("x"),
		host("h2", side),
	}, queries: &queries}

	_, found, err := Locate(".absent", doc)
	require.NoError(t, err)
	assert.False(t, found)
	// one query on the document plus one per shadow host
	assert.Equal(t, 1+3, queries)
}

func TestLocate_EmptyRoot(t *testing.T) {
	_, found, err := Locate("div", &fakeRoot{})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLocate_SharedShadowRootVisitedOnce(t *testing.T) {
	queries := 0
	shared := &fakeRoot{elements: []*fakeElement{el("a")}, queries: &queries}
	doc := &fakeRoot{elements: []*fakeElement{
		host("h1", shared),
		host("h2", shared),
	}}

	_, found, err := Locate(".none", doc)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 1, queries)
}

func TestLocate_CycleTerminates(t *testing.T) {
	a := &fakeRoot{}
	b := &fakeRoot{elements: []*fakeElement{host("back", a)}}
	a.elements = []*fakeElement{host("fwd", b)}

	_, found, err := Locate(".none", a)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLocate_DepthBound(t *testing.T) {
	bottom := &fakeRoot{elements: []*fakeElement{el("target", ".t")}}
	root := bottom
	for i := 0; i < 5; i++ {
		root = &fakeRoot{elements: []*fakeElement{host("h", root)}}
	}

	l := NewLocator(root, nil)

	got, found, err := l.Locate(".t", nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "target", got.(*fakeElement).name)

	_, found, err = l.WithMaxDepth(3).Locate(".t", nil)
	assert.ErrorIs(t, err, ErrMaxDepth)
	assert.False(t, found)
}

func TestLocate_DepthBoundSkipsOnlyDeepRoots(t *testing.T) {
	deep := &fakeRoot{elements: []*fakeElement{el("deep", ".other")}}
	for i := 0; i < 3; i++ {
		deep = &fakeRoot{elements: []*fakeElement{host("h", deep)}}
	}
	shallow := &fakeRoot{elements: []*fakeElement{el("target", ".t")}}
	doc := &fakeRoot{elements: []*fakeElement{
		host("first", deep),
		host("second", shallow),
	}}

	got, found, err := NewLocator(doc, nil).WithMaxDepth(2).Locate(".t", nil)
	require.NoError(t, err)
	require.True(t, found, "a too-deep sibling does not hide a match within the bound")
	assert.Equal(t, "target", got.(*fakeElement).name)

	_, found, err = NewLocator(doc, nil).WithMaxDepth(2).Locate(".other", nil)
	assert.ErrorIs(t, err, ErrMaxDepth)
	assert.False(t, found)
}

func TestLocate_QueryErrorPropagates(t *testing.T) {
	bad := errors.New("invalid selector")
	_, _, err := Locate("::", &fakeRoot{err: bad})
	assert.ErrorIs(t, err, bad)
}

func TestLocate_NoRoot(t *testing.T) {
	_, _, err := NewLocator(nil, nil).Locate("div", nil)
	assert.ErrorIs(t, err, ErrNoRoot)
}
