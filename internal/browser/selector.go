// internal/browser/selector.go
package browser

import "strings"

// SelectorKind tells a driver how to resolve a Selector.
type SelectorKind int

const (
	// ByCSS matches a CSS selector.
	ByCSS SelectorKind = iota
	// ByText matches the element whose visible text equals Value.
	ByText
)

const (
	textPrefix = "text="
	cssPrefix  = "css="
)

// Selector is a parsed selector string.
type Selector struct {
	Kind  SelectorKind
	Value string
}

// ParseSelector accepts "text=<label>", "css=<selector>" or a bare CSS selector.
func ParseSelector(s string) Selector {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, textPrefix):
		return Selector{Kind: ByText, Value: strings.TrimSpace(strings.TrimPrefix(s, textPrefix))}
	case strings.HasPrefix(s, cssPrefix):
		return Selector{Kind: ByCSS, Value: strings.TrimSpace(strings.TrimPrefix(s, cssPrefix))}
	default:
		return Selector{Kind: ByCSS, Value: s}
	}
}

// CSS is shorthand for a CSS selector.
func CSS(value string) Selector { return Selector{Kind: ByCSS, Value: value} }

// Text is shorthand for a visible-text selector.
func Text(value string) Selector { return Selector{Kind: ByText, Value: value} }

// String renders the selector back to its configuration form.
func (s Selector) String() string {
	if s.Kind == ByText {
		return textPrefix + s.Value
	}
	return s.Value
}

// IsZero reports whether the selector is empty, meaning the step it guards is disabled.
func (s Selector) IsZero() bool { return s.Value == "" }
