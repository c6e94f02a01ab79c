// internal/browser/state.go
package browser

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrEmptyState is returned by DecodeState for a document with no cookies and no origins.
var ErrEmptyState = errors.New("session state is empty")

// State is an authenticated browsing context snapshot. Its JSON form matches
// Playwright's storageState file so artifacts written by either driver can be
// restored by the other.
type State struct {
	Cookies []Cookie      `json:"cookies"`
	Origins []OriginState `json:"origins"`
}

// Cookie mirrors a storageState cookie. Expires is a Unix timestamp in
// seconds, -1 for session cookies.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// OriginState holds the localStorage entries of one origin.
type OriginState struct {
	Origin       string      `json:"origin"`
	LocalStorage []NameValue `json:"localStorage"`
}

// NameValue is a single localStorage entry.
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// IsEmpty reports whether the snapshot carries nothing to restore.
func (s *State) IsEmpty() bool {
	return s == nil || (len(s.Cookies) == 0 && len(s.Origins) == 0)
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{
		Cookies: append([]Cookie(nil), s.Cookies...),
		Origins: make([]OriginState, len(s.Origins)),
	}
	for i, o := range s.Origins {
		out.Origins[i] = OriginState{Origin: o.Origin, LocalStorage: append([]NameValue(nil), o.LocalStorage...)}
	}
	return out
}

// EncodeState serializes s as indented storageState JSON.
func EncodeState(s *State) ([]byte, error) {
	if s == nil {
		s = &State{}
	}
	if s.Cookies == nil {
		s = &State{Cookies: []Cookie{}, Origins: s.Origins}
	}
	if s.Origins == nil {
		s = &State{Cookies: s.Cookies, Origins: []OriginState{}}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode session state: %w", err)
	}
	return data, nil
}

// DecodeState parses storageState JSON. An empty snapshot is rejected so a
// mobile stage never starts from a context that was not authenticated.
func DecodeState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session state: %w", err)
	}
	if s.IsEmpty() {
		return nil, ErrEmptyState
	}
	return &s, nil
}
