// internal/browser/profile.go
package browser

// Device describes the emulated screen and input characteristics.
type Device struct {
	Name        string
	Width       int
	Height      int
	ScaleFactor float64
	Mobile      bool
	Touch       bool
}

// Geolocation is a fixed position reported to the page.
type Geolocation struct {
	Latitude  float64
	Longitude float64
}

// Profile is everything a Launcher needs to open one isolated context.
type Profile struct {
	// Name labels the profile in logs, e.g. "desktop".
	Name        string
	UserAgent   string
	Device      Device
	Locale      string
	Timezone    string
	Geolocation *Geolocation
	Permissions []string
	// InitScripts run in every document before any page script.
	InitScripts []string
	// State, when set, is restored into the context before the first page opens.
	State *State
}

// WithState returns a copy of p that restores s.
func (p Profile) WithState(s *State) Profile {
	p.State = s
	return p
}
