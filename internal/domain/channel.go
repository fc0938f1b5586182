// Package domain contains entities of a monitoring session, with as little logic as possible.
package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const DeepLinkScheme = "babyfoon"

var codePattern = regexp.MustCompile(`^\d{4}$`)

// ChannelCode is the 4-digit code a monitor shares with its listeners.
type ChannelCode string

func (c ChannelCode) String() string { return string(c) }

// StoragePrefix is the namespace of the channel's audio chunks.
func (c ChannelCode) StoragePrefix() string { return string(c) + "/" }

// DeepLink renders the link encoded in the monitor's QR code.
func (c ChannelCode) DeepLink() string {
	return fmt.Sprintf("%s://watch/%s", DeepLinkScheme, c)
}

// IsCode reports whether s is exactly four decimal digits.
func IsCode(s string) bool { return codePattern.MatchString(s) }

// ParseChannelCode trims surrounding whitespace and checks the 4-digit format.
func ParseChannelCode(raw string) (ChannelCode, error) {
	s := strings.TrimSpace(raw)
	if !codePattern.MatchString(s) {
		return "", E(KindValidation, "parse code", ErrInvalidCode)
	}
	return ChannelCode(s), nil
}

// ParseDeepLink extracts the code from "babyfoon://watch/1234", "/watch/1234"
// or a bare code.
func ParseDeepLink(link string) (ChannelCode, error) {
	link = strings.TrimSpace(link)
	if codePattern.MatchString(link) {
		return ChannelCode(link), nil
	}
	u, err := url.Parse(link)
	if err != nil {
		return "", E(KindValidation, "parse link", ErrInvalidLink)
	}
	path := u.Path
	if u.Scheme == DeepLinkScheme {
		// babyfoon://watch/1234 parses with host "watch".
		path = u.Host + u.Path
	}
	path = strings.Trim(path, "/")
	rest, ok := strings.CutPrefix(path, "watch/")
	if !ok {
		return "", E(KindValidation, "parse link", ErrInvalidLink)
	}
	if !codePattern.MatchString(rest) {
		return "", E(KindValidation, "parse link", ErrInvalidLink)
	}
	return ChannelCode(rest), nil
}

// Role is a participant role; numeric values follow the token endpoint contract.
type Role int

const (
	RoleBroadcaster Role = 1
	RoleAudience    Role = 2
)

func (r Role) String() string {
	switch r {
	case RoleBroadcaster:
		return "broadcaster"
	case RoleAudience:
		return "audience"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

func (r Role) Valid() bool { return r == RoleBroadcaster || r == RoleAudience }

// ParseRole maps the wire value; 0 defaults to broadcaster like the token endpoint.
func ParseRole(v int) (Role, error) {
	if v == 0 {
		return RoleBroadcaster, nil
	}
	r := Role(v)
	if !r.Valid() {
		return 0, E(KindValidation, "parse role", ErrInvalidRole)
	}
	return r, nil
}
