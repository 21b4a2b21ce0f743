package entities

// TopFrameID is the logical id of the outermost browsing context
const TopFrameID = "top"

// PointerEvent is the subset of a DOM mouse event the input policy looks at
type PointerEvent struct {
	Type    string `json:"type"` // contextmenu, click, auxclick
	Button  int    `json:"button"`
	MetaKey bool   `json:"meta_key"`
	CtrlKey bool   `json:"ctrl_key"`
}

const (
	EventContextMenu = "contextmenu"
	EventClick       = "click"
	EventAuxClick    = "auxclick"

	ButtonPrimary = 0
	ButtonMiddle  = 1
)
