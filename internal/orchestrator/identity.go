package orchestrator

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/burstline/internal/config"
	"github.com/xkilldash9x/burstline/internal/observability"
)

var (
	// ErrMissingCredentials is config.ErrMissingCredentials, so either package's sentinel matches.
	ErrMissingCredentials = config.ErrMissingCredentials
	// ErrDuplicateStatePath is returned when two identities would share one session state.
	ErrDuplicateStatePath = errors.New("duplicate session state path")
	// ErrNoIdentities is returned when a run is started without identities.
	ErrNoIdentities = errors.New("no identities configured")
)

// Identity is one configured account. It is immutable once built.
type Identity struct {
	Username string
	Password string
	// SessionStatePath is the store key of the identity's session state.
	SessionStatePath string
}

// Label is the masked username used in logs, metrics callbacks and errors.
func (i Identity) Label() string { return observability.MaskUsername(i.Username) }

// IdentitiesFromConfig converts the resolved credential slots.
func IdentitiesFromConfig(creds []config.Credential) []Identity {
	out := make([]Identity, 0, len(creds))
	for _, c := range creds {
		out = append(out, Identity{Username: c.Username, Password: c.Password, SessionStatePath: c.StatePath})
	}
	return out
}

// Validate checks every identity before any browser is started.
func Validate(ids []Identity) error {
	if len(ids) == 0 {
		return ErrNoIdentities
	}
	paths := make(map[string]int, len(ids))
	for n, id := range ids {
		if id.Username == "" || id.Password == "" {
			return fmt.Errorf("%w: identity %d needs both a username and a password", ErrMissingCredentials, n+1)
		}
		if id.SessionStatePath == "" {
			return fmt.Errorf("%w: identity %d has no session state path", config.ErrInvalidConfig, n+1)
		}
		if prev, dup := paths[id.SessionStatePath]; dup {
			return fmt.Errorf("%w: identities %d and %d both use %q", ErrDuplicateStatePath, prev+1, n+1, id.SessionStatePath)
		}
		paths[id.SessionStatePath] = n
	}
	return nil
}
