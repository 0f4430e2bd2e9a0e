package diag

import (
	"fmt"
	"strings"
)

// Profile selects the build-style behaviour of diagnostics and fatal conditions.
//
//   - Debug delivers every severity. Fatal conditions are logged and asserted:
//     they come back to the caller as errors and never end the process.
//   - Release suppresses Verbose, Info and Warn. Fatal conditions are logged at
//     Error and then terminate.
type Profile int

const (
	Debug Profile = iota
	Release
)

func (p Profile) String() string {
	if p == Release {
		return "release"
	}
	return "debug"
}

// ParseProfile converts a config string into a Profile
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(s) {
	case "debug", "":
		return Debug, nil
	case "release":
		return Release, nil
	default:
		return Debug, fmt.Errorf("invalid profile: %s", s)
	}
}

// Terminates reports whether fatal conditions end the process under p.
func (p Profile) Terminates() bool {
	return p == Release
}

// Filter applies the profile's severity matrix in front of s.
func Filter(s Sink, p Profile) Sink {
	if s == nil {
		return Nop()
	}
	if p == Release {
		return MinLevel(s, Error)
	}
	return s
}
