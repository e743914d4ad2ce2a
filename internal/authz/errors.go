package authz

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrNotAuthorized is returned when the caller lacks an active identity for
// an operation that needs one.
var ErrNotAuthorized = errors.New("authz: not authorized")

// LandingPath is where a device is sent to retry the guest challenge.
const LandingPath = "/"

// InvalidMacError reports a submitted MAC address that is not a 48-bit
// hardware address. Nothing was recorded or pushed.
type InvalidMacError struct {
	MAC string
}

func (e *InvalidMacError) Error() string {
	return fmt.Sprintf("invalid MAC address %q", e.MAC)
}

// IncorrectGuestPasswordError reports a failed guest challenge. RetryURL
// leads back to the landing page with the MAC preserved.
type IncorrectGuestPasswordError struct {
	MAC      string
	RetryURL string
}

func (e *IncorrectGuestPasswordError) Error() string {
	return "incorrect guest password"
}

// RetryURL builds the landing URL that re-presents the guest challenge
// for mac.
func RetryURL(mac string) string {
	return LandingPath + "?" + url.Values{"id": {mac}}.Encode()
}

// PushError reports that the controller push failed after the
// authorization was committed. The authorization stands.
type PushError struct {
	AuthorizationID string
	Err             error
}

func (e *PushError) Error() string {
	return fmt.Sprintf("authorization %s recorded but controller push failed: %v", e.AuthorizationID, e.Err)
}

func (e *PushError) Unwrap() error {
	return e.Err
}
