// Package identifier defines the supported browser platforms and validates
// extension identifiers against each platform's accepted syntax.
//
// Validation is purely syntactic and performs no network or filesystem
// access; it is the gate that every identifier must pass before any
// request is issued on its behalf.
package identifier

import (
	"regexp"

	"github.com/pkg/errors"
)

// Platform identifies the browser vendor an extension belongs to.
type Platform string

const (
	// Chrome identifies Chrome/Chromium extensions distributed as CRX packages.
	Chrome Platform = "chrome"
	// Firefox identifies Firefox addons distributed as XPI packages.
	Firefox Platform = "firefox"
)

// String returns the string representation of the platform.
func (p Platform) String() string {
	return string(p)
}

// ParsePlatform converts a platform name to a Platform.
func ParsePlatform(s string) (Platform, error) {
	switch s {
	case "chrome":
		return Chrome, nil
	case "firefox":
		return Firefox, nil
	default:
		return "", errors.Errorf("unknown platform %q (supported: chrome, firefox)", s)
	}
}

var (
	// Chrome IDs are 32-character hashes over the lowercase alphanumeric
	// alphabet, e.g. "cjpalhdlnbpafiamejdnhcphjbkeiagm".
	chromeIDPattern = regexp.MustCompile(`^[a-z0-9]{32}$`)

	// Firefox addons are named either by a braced lowercase GUID or by a
	// slug such as "uBlock0@raymondhill.net". Slugs must start and end
	// with an alphanumeric character.
	firefoxGUIDPattern = regexp.MustCompile(`^\{[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}\}$`)
	firefoxSlugPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.@-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)
)

// Valid reports whether id matches the accepted identifier syntax for the
// given platform.
func Valid(id string, platform Platform) bool {
	switch platform {
	case Chrome:
		return chromeIDPattern.MatchString(id)
	case Firefox:
		return firefoxGUIDPattern.MatchString(id) || firefoxSlugPattern.MatchString(id)
	default:
		return false
	}
}

// Requirement describes the accepted identifier syntax for a platform.
// It is used to build actionable validation error messages.
func Requirement(platform Platform) string {
	switch platform {
	case Chrome:
		return "must be 32 lowercase alphanumeric characters"
	case Firefox:
		return "must be a GUID (e.g. {uuid}) or a slug (alphanumeric with hyphens, underscores, dots or @)"
	default:
		return "unknown platform"
	}
}
