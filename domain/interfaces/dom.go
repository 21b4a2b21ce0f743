package interfaces

// SearchRoot is a node hosting a queryable subtree: a document or a shadow root.
// Implementations must be comparable (pointer types) so traversals can track
// visited roots.
type SearchRoot interface {
	// QuerySelector returns the first element of this subtree matching the
	// selector, or nil. The query does not cross shadow boundaries.
	QuerySelector(selector string) (Element, error)

	// Descendants returns every element of this subtree in document order,
	// without entering shadow roots.
	Descendants() []Element
}

// Element is a node of a SearchRoot
type Element interface {
	// ShadowRoot returns the attached shadow root, or nil
	ShadowRoot() SearchRoot
}
