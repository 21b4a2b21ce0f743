// Package dom is a static DOM with declarative shadow roots, searchable by the
// shadow-DOM locator. Shadow content is detached from the light tree at parse
// time, so a light-tree query never reaches into a shadow root.
package dom

import (
	"fmt"
	"io"
	"strings"

	"evalconsole/domain/interfaces"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	ShadowModeOpen   = "open"
	ShadowModeClosed = "closed"
)

// Document is a parsed page
type Document struct {
	scope
	shadows   map[*html.Node]*ShadowRoot
	selectors *SelectorCache
}

// ShadowRoot is a shadow tree attached to a host element
type ShadowRoot struct {
	scope
	host *html.Node
	mode string
}

// Element is an element of a Document or of one of its shadow roots
type Element struct {
	node *html.Node
	doc  *Document
}

// scope is a queryable subtree rooted at node
type scope struct {
	node *html.Node
	doc  *Document
}

// Parse - parses HTML, attaching <template shadowrootmode> children as shadow roots
func Parse(r io.Reader) (*Document, error) {
	return ParseWithCache(r, defaultSelectors)
}

// ParseString - parses an HTML string
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// ParseWithCache - parses HTML using the given selector cache
func ParseWithCache(r io.Reader, selectors *SelectorCache) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	if selectors == nil {
		selectors = defaultSelectors
	}

	doc := &Document{
		shadows:   make(map[*html.Node]*ShadowRoot),
		selectors: selectors,
	}
	doc.scope = scope{node: root, doc: doc}
	doc.attachShadows(root)

	return doc, nil
}

// attachShadows moves the content of declarative shadow templates into
// detached fragments. Only the first template of a host is attached; later
// ones stay in the light tree, as in browsers.
func (d *Document) attachShadows(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling

		mode, ok := shadowTemplateMode(c)
		if ok && n.Type == html.ElementNode && d.shadows[n] == nil {
			n.RemoveChild(c)

			frag := &html.Node{Type: html.DocumentNode}
			for gc := c.FirstChild; gc != nil; {
				nx := gc.NextSibling
				c.RemoveChild(gc)
				frag.AppendChild(gc)
				gc = nx
			}

			d.shadows[n] = &ShadowRoot{
				scope: scope{node: frag, doc: d},
				host:  n,
				mode:  mode,
			}
			d.attachShadows(frag)
		} else {
			d.attachShadows(c)
		}

		c = next
	}
}

func shadowTemplateMode(n *html.Node) (string, bool) {
	if n.Type != html.ElementNode || n.Data != "template" {
		return "", false
	}
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "shadowrootmode", "shadowroot":
			mode := strings.ToLower(strings.TrimSpace(a.Val))
			if mode == ShadowModeOpen || mode == ShadowModeClosed {
				return mode, true
			}
		}
	}
	return "", false
}

// QuerySelector returns the first element of the subtree matching selector
func (s scope) QuerySelector(selector string) (interfaces.Element, error) {
	el, err := s.first(selector)
	if err != nil || el == nil {
		return nil, err
	}
	return el, nil
}

// QuerySelectorAll returns every element of the subtree matching selector
func (s scope) QuerySelectorAll(selector string) ([]*Element, error) {
	sel, err := s.doc.selectors.Compile(selector)
	if err != nil {
		return nil, err
	}
	found := goquery.NewDocumentFromNode(s.node).FindMatcher(sel)
	out := make([]*Element, 0, found.Length())
	for _, n := range found.Nodes {
		out = append(out, &Element{node: n, doc: s.doc})
	}
	return out, nil
}

func (s scope) first(selector string) (*Element, error) {
	sel, err := s.doc.selectors.Compile(selector)
	if err != nil {
		return nil, err
	}
	found := goquery.NewDocumentFromNode(s.node).FindMatcher(goquery.SingleMatcher(sel))
	if found.Length() == 0 {
		return nil, nil
	}
	return &Element{node: found.Nodes[0], doc: s.doc}, nil
}

// Descendants returns every element of the subtree in document order
func (s scope) Descendants() []interfaces.Element {
	all, err := s.QuerySelectorAll("*")
	if err != nil {
		return nil
	}
	out := make([]interfaces.Element, 0, len(all))
	for _, el := range all {
		out = append(out, el)
	}
	return out
}

// Node - returns the underlying root node
func (s scope) Node() *html.Node {
	return s.node
}

// ShadowRootCount - number of attached shadow roots, closed ones included
func (d *Document) ShadowRootCount() int {
	return len(d.shadows)
}

// Host - returns the host element
func (sr *ShadowRoot) Host() *Element {
	return &Element{node: sr.host, doc: sr.doc}
}

// Mode - open or closed
func (sr *ShadowRoot) Mode() string {
	return sr.mode
}

// ShadowRoot returns the element's open shadow root. Closed roots are not
// exposed, matching Element.shadowRoot in browsers.
func (e *Element) ShadowRoot() interfaces.SearchRoot {
	if sr, ok := e.doc.shadows[e.node]; ok && sr.mode == ShadowModeOpen {
		return sr
	}
	return nil
}

// Node - returns the underlying html node
func (e *Element) Node() *html.Node {
	return e.node
}

// Tag - returns the lower-case tag name
func (e *Element) Tag() string {
	return e.node.Data
}

// Attr - returns an attribute value
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// ID - returns the id attribute
func (e *Element) ID() string {
	id, _ := e.Attr("id")
	return id
}

// Text - returns the light-tree text content
func (e *Element) Text() string {
	return strings.TrimSpace(goquery.NewDocumentFromNode(e.node).Text())
}

// OuterHTML - renders the element
func (e *Element) OuterHTML() (string, error) {
	return goquery.OuterHtml(goquery.NewDocumentFromNode(e.node).Selection)
}

var (
	_ interfaces.SearchRoot = (*Document)(nil)
	_ interfaces.SearchRoot = (*ShadowRoot)(nil)
	_ interfaces.Element    = (*Element)(nil)
)
