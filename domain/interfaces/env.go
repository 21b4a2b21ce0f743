package interfaces

// FrameEnv is the capability port of the execution context a helper runs in
type FrameEnv interface {
	// FrameID returns the id of the hosting frame element, "top" in the top window
	FrameID() string

	// IsTargetFrame reports whether this context is the frame the task scripts target
	IsTargetFrame() bool

	// CanRegisterReady reports whether the page-loaded event registrar is available yet
	CanRegisterReady() bool

	// OnFrameReady registers a callback run once the frame finished loading
	OnFrameReady(cb func())

	// Location returns the current location of the context
	Location() string
}
