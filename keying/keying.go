// Package keying derives the caller key a rate limiter counts against.
package keying

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/Keksclan/goRawrShaper/contextx"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// KeyFunc returns the limiter key for a request, or false when it cannot
// identify the caller. Keys carry a kind prefix ("actor:", "header:",
// "ip:") so different strategies never collide in one limiter.
type KeyFunc func(ctx context.Context, md metadata.MD) (string, bool)

// DefaultHeaderPriority lists the forwarding headers consulted, in order,
// when the peer is a trusted proxy.
var DefaultHeaderPriority = []string{"x-real-ip", "x-forwarded-for"}

// ByActor keys on the authenticated caller stored by the auth interceptor.
func ByActor() KeyFunc {
	return func(ctx context.Context, _ metadata.MD) (string, bool) {
		a, ok := contextx.ActorFromContext(ctx)
		if !ok || a.Key() == "" {
			return "", false
		}
		return "actor:" + a.Key(), true
	}
}

// ByHeader keys on the first non-empty value of a metadata header.
func ByHeader(name string) KeyFunc {
	name = strings.ToLower(name)
	return func(_ context.Context, md metadata.MD) (string, bool) {
		for _, v := range md.Get(name) {
			if v = strings.TrimSpace(v); v != "" {
				return "header:" + name + ":" + v, true
			}
		}
		return "", false
	}
}

// ByPeer keys on the client IP. Forwarding headers are only believed when
// the TCP peer falls inside one of trustedProxies (CIDRs or bare IPs). An
// empty headerPriority uses [DefaultHeaderPriority].
func ByPeer(trustedProxies, headerPriority []string) (KeyFunc, error) {
	proxies, err := ParsePrefixes(trustedProxies)
	if err != nil {
		return nil, fmt.Errorf("keying: trusted proxies: %w", err)
	}
	if len(headerPriority) == 0 {
		headerPriority = DefaultHeaderPriority
	}
	return func(ctx context.Context, md metadata.MD) (string, bool) {
		addr, ok := ClientAddr(ctx, md, proxies, headerPriority)
		if !ok {
			return "", false
		}
		return "ip:" + addr.String(), true
	}, nil
}

// First tries each KeyFunc in order and returns the first key found.
func First(fns ...KeyFunc) KeyFunc {
	return func(ctx context.Context, md metadata.MD) (string, bool) {
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if k, ok := fn(ctx, md); ok {
				return k, true
			}
		}
		return "", false
	}
}

// ClientAddr returns the effective client address: a forwarded address when
// the peer is trusted and a header carries a valid IP, the peer address
// otherwise.
func ClientAddr(ctx context.Context, md metadata.MD, trusted []netip.Prefix, headerPriority []string) (netip.Addr, bool) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return netip.Addr{}, false
	}
	peerAddr, ok := parseNetAddr(p.Addr)
	if !ok {
		return netip.Addr{}, false
	}
	if containsAddr(trusted, peerAddr) {
		if addr, found := addrFromHeaders(md, headerPriority); found {
			return addr, true
		}
	}
	return peerAddr, true
}

// ParsePrefixes parses CIDRs. A bare IP becomes a single-host prefix.
func ParsePrefixes(raw []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		p, err := netip.ParsePrefix(s)
		if err != nil {
			addr, addrErr := netip.ParseAddr(s)
			if addrErr != nil {
				return nil, fmt.Errorf("%q: %w", s, err)
			}
			p = netip.PrefixFrom(addr, addr.BitLen())
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

func parseNetAddr(addr net.Addr) (netip.Addr, bool) {
	s := addr.String()
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}

func containsAddr(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// addrFromHeaders uses the left-most valid entry of multi-value headers
// such as X-Forwarded-For.
func addrFromHeaders(md metadata.MD, priority []string) (netip.Addr, bool) {
	for _, key := range priority {
		for _, v := range md.Get(key) {
			for part := range strings.SplitSeq(v, ",") {
				if ip, err := netip.ParseAddr(strings.TrimSpace(part)); err == nil {
					return ip.Unmap(), true
				}
			}
		}
	}
	return netip.Addr{}, false
}
