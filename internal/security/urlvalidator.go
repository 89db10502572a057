package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
)

var (
	ErrPrivateIP     = errors.New("URL resolves to a private address")
	ErrInvalidScheme = errors.New("only HTTPS image URLs are allowed")
	ErrMissingHost   = errors.New("URL has no host")

	// special-purpose ranges that are not covered by netip's predicates
	reservedPrefixes = []netip.Prefix{
		netip.MustParsePrefix("0.0.0.0/8"),
		netip.MustParsePrefix("100.64.0.0/10"),
		netip.MustParsePrefix("192.0.0.0/24"),
		netip.MustParsePrefix("192.0.2.0/24"),
		netip.MustParsePrefix("198.18.0.0/15"),
		netip.MustParsePrefix("198.51.100.0/24"),
		netip.MustParsePrefix("203.0.113.0/24"),
		netip.MustParsePrefix("240.0.0.0/4"),
	}
)

// URLValidator guards remote image fetches against requests into private networks.
type URLValidator struct {
	// AllowPrivate disables the address check. Tests against httptest servers set it.
	AllowPrivate bool
	lookup       func(ctx context.Context, host string) ([]netip.Addr, error)
}

func NewURLValidator() *URLValidator {
	return &URLValidator{lookup: func(ctx context.Context, host string) ([]netip.Addr, error) {
		return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	}}
}

// Validate checks the scheme and every address the host resolves to.
func (v *URLValidator) Validate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if v.AllowPrivate {
		if u.Scheme != "https" && u.Scheme != "http" {
			return ErrInvalidScheme
		}
		return nil
	}
	if u.Scheme != "https" {
		return ErrInvalidScheme
	}
	host := u.Hostname()
	if host == "" {
		return ErrMissingHost
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isPrivateAddr(addr) {
			return ErrPrivateIP
		}
		return nil
	}

	addrs, err := v.lookup(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, a := range addrs {
		if isPrivateAddr(a) {
			return ErrPrivateIP
		}
	}
	return nil
}

func isPrivateAddr(a netip.Addr) bool {
	a = a.Unmap()
	if a.IsLoopback() || a.IsPrivate() || a.IsUnspecified() ||
		a.IsLinkLocalUnicast() || a.IsLinkLocalMulticast() || a.IsMulticast() {
		return true
	}
	for _, p := range reservedPrefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
