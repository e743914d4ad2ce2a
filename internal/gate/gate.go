// Package gate decides what to do with a device landing on the portal.
package gate

import (
	"net/netip"
	"strings"
)

// Kind is the outcome of a landing probe.
type Kind int

const (
	// PassThrough sends a trusted operator to the home view.
	PassThrough Kind = iota
	// ExternalRedirect asks the controller to reissue the redirect with a MAC.
	ExternalRedirect
	// AuthorizeAuthenticated runs the authenticated path for the probe's MAC.
	AuthorizeAuthenticated
	// GuestChallenge shows the guest password form pre-filled with the MAC.
	GuestChallenge
)

func (k Kind) String() string {
	switch k {
	case PassThrough:
		return "pass_through"
	case ExternalRedirect:
		return "external_redirect"
	case AuthorizeAuthenticated:
		return "authorize_authenticated"
	case GuestChallenge:
		return "guest_challenge"
	default:
		return "unknown"
	}
}

// Probe is an inbound landing request.
type Probe struct {
	MAC           string
	ClientIP      string
	Authenticated bool
}

// Settings holds the addresses the gate routes by.
type Settings struct {
	TrustedOperatorIP     string
	PortalTriggerRedirect string
	HomePath              string
}

// Decision is what the caller should do next. RedirectURL is set for
// PassThrough and ExternalRedirect; MAC for the other two kinds.
type Decision struct {
	Kind        Kind
	RedirectURL string
	MAC         string
}

// Decide routes a probe. The MAC is passed through as submitted; the
// authorization engine validates it.
func Decide(p Probe, s Settings) Decision {
	mac := strings.TrimSpace(p.MAC)
	if mac == "" {
		if sameIP(p.ClientIP, s.TrustedOperatorIP) {
			return Decision{Kind: PassThrough, RedirectURL: s.HomePath}
		}
		return Decision{Kind: ExternalRedirect, RedirectURL: s.PortalTriggerRedirect}
	}

	if p.Authenticated {
		return Decision{Kind: AuthorizeAuthenticated, MAC: mac}
	}
	return Decision{Kind: GuestChallenge, MAC: mac}
}

func sameIP(a, b string) bool {
	ipA, err := netip.ParseAddr(strings.TrimSpace(a))
	if err != nil {
		return false
	}
	ipB, err := netip.ParseAddr(strings.TrimSpace(b))
	if err != nil {
		return false
	}
	return ipA.Unmap() == ipB.Unmap()
}
