package enums

import "fmt"

// SessionState tracks whether a visitor session is anonymous or signed in.
type SessionState string

const (
	SessionStateGuest         SessionState = "guest"
	SessionStateAuthenticated SessionState = "authenticated"
)

var validSessionStates = []SessionState{
	SessionStateGuest,
	SessionStateAuthenticated,
}

// String implements fmt.Stringer.
func (s SessionState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SessionState.
func (s SessionState) IsValid() bool {
	for _, candidate := range validSessionStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSessionState converts raw input into a SessionState.
func ParseSessionState(value string) (SessionState, error) {
	for _, candidate := range validSessionStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid session state %q", value)
}
