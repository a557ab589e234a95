// Package sni locates the Server Name Indication extension inside a TLS
// ClientHello record and matches it against a configured domain set.
package sni

import "strings"

// allDomains is the sentinel domain set that matches every SNI value.
const allDomains = "all"

// DomainSet is the configured match set for the domains option: either
// the literal sentinel "all" or a fixed collection of lowercase hostnames.
type DomainSet struct {
	all     bool
	domains map[string]struct{}
}

// ParseDomains builds a DomainSet from a comma-separated UTF-8 string, or
// the sentinel "all". Empty entries are ignored; hostnames are compared
// case-insensitively, so they are folded to lowercase on construction.
func ParseDomains(s string) DomainSet {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, allDomains) {
		return DomainSet{all: true}
	}

	set := make(map[string]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		set[part] = struct{}{}
	}
	return DomainSet{domains: set}
}

// Matches reports whether name is in the set. A DomainSet built from the
// "all" sentinel matches every name.
func (d DomainSet) Matches(name string) bool {
	if d.all {
		return true
	}
	_, ok := d.domains[strings.ToLower(name)]
	return ok
}

// IsAll reports whether the set is the "all" sentinel.
func (d DomainSet) IsAll() bool {
	return d.all
}
