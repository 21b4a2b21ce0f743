package interfaces

import "context"

// Browser defines the interface for the browser hosting the application under test
type Browser interface {
	// Navigate navigates the current page to a URL
	Navigate(ctx context.Context, url string) error

	// AddInitScript registers a script evaluated in every frame before page scripts
	AddInitScript(ctx context.Context, script string) error

	// Reload reloads the current page so init scripts apply
	Reload(ctx context.Context) error

	// Frames returns every frame of every open page
	Frames(ctx context.Context) ([]Frame, error)

	// Snapshot serializes the current page, shadow roots included
	Snapshot(ctx context.Context) (string, error)

	// Close closes the browser
	Close() error
}

// Frame is one browsing context of a page
type Frame interface {
	// ID returns the id of the frame element, "top" for the main frame
	ID() string

	// URL returns the frame location
	URL() string

	// PageURL returns the location of the page owning the frame
	PageURL() string

	// IsTop reports whether this is the outermost browsing context
	IsTop() bool

	// Evaluate evaluates a JS expression and returns its JSON value
	Evaluate(ctx context.Context, expression string) (interface{}, error)
}
