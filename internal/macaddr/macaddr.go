// Package macaddr parses and canonicalizes device hardware addresses.
package macaddr

import (
	"fmt"
	"net"
	"strings"
)

// InvalidError reports a string that is not a 48-bit hardware address.
type InvalidError struct {
	Input string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid MAC address %q", e.Input)
}

// Canonical parses mac in any of the common textual forms and returns it as
// lowercase colon-separated octets (aa:bb:cc:dd:ee:ff).
//
// Accepted forms: colon or dash separated octets, Cisco dotted groups
// (aabb.ccdd.eeff) and 12 bare hex digits.
func Canonical(mac string) (string, error) {
	s := strings.TrimSpace(mac)
	if len(s) == 12 && isHex(s) {
		s = s[0:2] + ":" + s[2:4] + ":" + s[4:6] + ":" + s[6:8] + ":" + s[8:10] + ":" + s[10:12]
	}

	hw, err := net.ParseMAC(s)
	if err != nil || len(hw) != 6 {
		return "", &InvalidError{Input: mac}
	}
	return hw.String(), nil
}

// Valid reports whether mac parses as a 48-bit hardware address.
func Valid(mac string) bool {
	_, err := Canonical(mac)
	return err == nil
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
