package scripts

import (
	"fmt"

	"evalconsole/domain/entities"
)

// Expressions evaluated by the harness inside frames. Every one is a
// zero-argument arrow function so both browser backends call it the same way.
// Strings are embedded as JSON literals, never spliced raw.

// ReadFlag - evaluates to true when the window flag is set and truthy
func ReadFlag(key entities.StatusKey) string {
	return fmt.Sprintf("() => typeof window.%[1]s !== 'undefined' && !!window.%[1]s", key)
}

// WriteFlag - sets the window flag to true or false. Page scripts compare the
// load flag with === true, so it must stay a boolean.
func WriteFlag(key entities.StatusKey, set bool) string {
	return fmt.Sprintf("() => { window.%s = %t; return true; }", key, set)
}

// PresetFlag - init script presetting a flag before page scripts run
func PresetFlag(key entities.StatusKey) string {
	return fmt.Sprintf("window.%s = 1;", key)
}

// SetText - writes text into the element with the given id when present
func SetText(elementID, text string) string {
	return fmt.Sprintf(
		"() => { const el = document.getElementById(%s); if (!el) { return false; } el.innerText = %s; return true; }",
		mustJSON(elementID), mustJSON(text),
	)
}

// ReadValue - evaluates to the value of the input with the given id, or null
func ReadValue(elementID string) string {
	return fmt.Sprintf(
		"() => { const el = document.getElementById(%s); return el ? el.value : null; }",
		mustJSON(elementID),
	)
}

// ElementExists - evaluates to true when an element with the id exists
func ElementExists(elementID string) string {
	return fmt.Sprintf("() => document.getElementById(%s) !== null", mustJSON(elementID))
}

// LocateOuterHTML - runs the injected shadow-DOM locator and returns the match's
// outer HTML, or null
func LocateOuterHTML(selector string) string {
	return fmt.Sprintf(
		"() => { if (typeof findElementInShadowDOM !== 'function') { return null; } const el = findElementInShadowDOM(%s); return el ? el.outerHTML : null; }",
		mustJSON(selector),
	)
}

// FrameElementID - evaluates to the id of the hosting frame element, or null in the top window
func FrameElementID() string {
	return "() => (window.frameElement && window.frameElement.id) || null"
}

// CanRegisterReady - evaluates to true once the page-loaded event registrar exists
func CanRegisterReady() string {
	return "() => typeof window.addAfterPageLoadedEvent !== 'undefined'"
}

// RegisterReady - registers the load-complete hook through the page's registrar
func RegisterReady(key entities.StatusKey) string {
	return fmt.Sprintf(
		"() => { if (typeof window.addAfterPageLoadedEvent === 'undefined') { return false; } window.addAfterPageLoadedEvent(function () { window.%s = true; }); return true; }",
		key,
	)
}

// Location - evaluates to window.location.href
func Location() string {
	return "() => window.location.href"
}

// Snapshot serializes the document with every open shadow root as a
// declarative <template shadowrootmode="open">.
func Snapshot() string {
	return `() => {
	const roots = [];
	const collect = (root) => {
		root.querySelectorAll('*').forEach(el => {
			if (el.shadowRoot) {
				roots.push(el.shadowRoot);
				collect(el.shadowRoot);
			}
		});
	};
	collect(document);
	const html = document.documentElement;
	if (typeof html.getHTML === 'function') {
		return '<!DOCTYPE html><html>' + html.getHTML({ serializableShadowRoots: true, shadowRoots: roots }) + '</html>';
	}
	return '<!DOCTYPE html>' + html.outerHTML;
}`
}

func mustJSON(s string) string {
	lit, err := jsonLiteral(s)
	if err != nil {
		// strings always marshal
		panic(err)
	}
	return lit
}
