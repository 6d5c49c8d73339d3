// Package urlparser parses the mount URLs accepted by objfsd's MOUNT
// command and config file (objfs:///path, nfs://host:port/export,
// file:///path, distfs://host/path), grounded on original_source's
// fs++/urlparser.h. Uses a hand-rolled scanner rather than net/url
// because the source grammar differs from RFC 3986 in small ways (bare
// IPv4 hosts without brackets, scheme-specific path-based forms) that
// net/url does not model the same way.
package urlparser

import (
	"fmt"
	"strings"
)

// URL is a parsed mount URL.
type URL struct {
	Scheme         string
	SchemeSpecific string
	Host           string
	Port           string
	Path           string
	Query          map[string]string
}

var hostbasedSchemes = map[string]bool{
	"tcp": true, "udp": true, "http": true, "https": true, "nfs": true,
}

var pathbasedSchemes = map[string]bool{
	"file": true, "objfs": true, "distfs": true,
}

func (u *URL) IsHostbased() bool { return hostbasedSchemes[u.Scheme] }
func (u *URL) IsPathbased() bool { return pathbasedSchemes[u.Scheme] }

// Parse parses a mount URL.
func Parse(raw string) (*URL, error) {
	u := &URL{Query: map[string]string{}}
	s, err := u.parseScheme(raw)
	if err != nil {
		return nil, err
	}
	u.SchemeSpecific = s

	switch {
	case u.IsHostbased():
		if !strings.HasPrefix(s, "//") {
			return nil, fmt.Errorf("urlparser: malformed url %q", raw)
		}
		s = s[2:]
		s = u.parseHost(s)
		if len(s) > 0 && s[0] == ':' {
			s = u.parsePort(s[1:])
		}
		if len(s) > 0 {
			if s[0] != '/' {
				return nil, fmt.Errorf("urlparser: malformed url %q", raw)
			}
			if err := u.parsePath(s[1:]); err != nil {
				return nil, err
			}
		}
	case u.IsPathbased():
		if !strings.HasPrefix(s, "//") {
			return nil, fmt.Errorf("urlparser: malformed url %q", raw)
		}
		if err := u.parsePath(s[2:]); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("urlparser: unknown scheme %q", u.Scheme)
	}
	return u, nil
}

func isAlpha(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }
func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isAlnum(b byte) bool { return isAlpha(b) || isDigit(b) }

func (u *URL) parseScheme(s string) (string, error) {
	if len(s) == 0 || !isAlpha(s[0]) {
		return "", fmt.Errorf("urlparser: malformed url %q", s)
	}
	i := 0
	for i < len(s) && s[i] != ':' {
		c := s[i]
		if !isAlnum(c) && c != '+' && c != '.' && c != '-' {
			return "", fmt.Errorf("urlparser: malformed url %q", s)
		}
		i++
	}
	if i >= len(s) || s[i] != ':' {
		return "", fmt.Errorf("urlparser: malformed url %q", s)
	}
	u.Scheme = s[:i]
	return s[i+1:], nil
}

func (u *URL) parseHost(s string) string {
	if len(s) == 0 {
		return s
	}
	switch {
	case isDigit(s[0]):
		return u.parseIPv4(s)
	case s[0] == '[':
		return u.parseIPv6(s)
	default:
		i := 0
		for i < len(s) && s[i] != ':' && s[i] != '/' {
			i++
		}
		u.Host = s[:i]
		return s[i:]
	}
}

func (u *URL) parseIPv4(s string) string {
	var b strings.Builder
	for octet := 0; octet < 4; octet++ {
		if octet > 0 {
			if len(s) == 0 || s[0] != '.' {
				u.Host = b.String()
				return s
			}
			b.WriteByte('.')
			s = s[1:]
		}
		for len(s) > 0 && isDigit(s[0]) {
			b.WriteByte(s[0])
			s = s[1:]
		}
	}
	u.Host = b.String()
	return s
}

func (u *URL) parseIPv6(s string) string {
	i := strings.IndexByte(s, ']')
	if i < 0 {
		u.Host = s
		return ""
	}
	inner := s[1:i]
	u.Host = "[" + inner + "]"
	return s[i+1:]
}

func (u *URL) parsePort(s string) string {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	u.Port = s[:i]
	return s[i:]
}

func (u *URL) parsePath(s string) error {
	i := strings.IndexByte(s, '?')
	if i < 0 {
		u.Path = s
		return nil
	}
	u.Path = s[:i]
	rest := s[i+1:]
	for {
		j := strings.IndexAny(rest, "&;")
		if j < 0 {
			u.parseQueryTerm(rest)
			return nil
		}
		u.parseQueryTerm(rest[:j])
		rest = rest[j+1:]
	}
}

func (u *URL) parseQueryTerm(s string) {
	if s == "" {
		return
	}
	if i := strings.IndexByte(s, '='); i >= 0 {
		u.Query[s[:i]] = s[i+1:]
	} else {
		u.Query[s] = "true"
	}
}

func (u *URL) String() string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(u.Host)
	if u.Port != "" {
		b.WriteByte(':')
		b.WriteString(u.Port)
	}
	b.WriteByte('/')
	b.WriteString(u.Path)
	return b.String()
}
