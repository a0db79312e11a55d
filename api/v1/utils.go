package v1

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// proxyIPHeaders are checked in order after X-Forwarded-For.
var proxyIPHeaders = []string{
	"X-Real-IP",
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Client-IP",
}

// getClientIP resolves the visitor's public IP, preferring reverse-proxy
// headers over the socket address. Private and loopback addresses are
// skipped so a misconfigured proxy chain cannot report itself as the
// visitor.
func getClientIP(c *fiber.Ctx) string {
	if ip := selectPreferredIP(strings.Split(c.Get("X-Forwarded-For"), ",")); ip != "" {
		return ip
	}

	for _, header := range proxyIPHeaders {
		if value := c.Get(header); value != "" {
			if ip := selectPreferredIP([]string{value}); ip != "" {
				return ip
			}
		}
	}

	if forwarded := c.Get("Forwarded"); forwarded != "" {
		if ip := selectPreferredIP(parseForwardedHeader(forwarded)); ip != "" {
			return ip
		}
	}

	if remoteAddr := c.Context().RemoteAddr().String(); remoteAddr != "" {
		candidate := remoteAddr
		if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
			candidate = host
		}
		if parsed := net.ParseIP(candidate); parsed != nil && !isPrivateIP(parsed) {
			return candidate
		}
	}

	if ip := c.IP(); ip != "" && ip != "0.0.0.0" && ip != "::" {
		if parsed := net.ParseIP(strings.TrimSpace(ip)); parsed != nil && !isPrivateIP(parsed) {
			return ip
		}
	}

	return "127.0.0.1"
}

// privateIPBlocks covers RFC 1918, RFC 4193, link-local and loopback.
var privateIPBlocks = func() []*net.IPNet {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"fc00::/7",
		"fe80::/10",
		"::1/128",
		"127.0.0.0/8",
	}
	blocks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, block, _ := net.ParseCIDR(cidr)
		blocks = append(blocks, block)
	}
	return blocks
}()

func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}

	for _, block := range privateIPBlocks {
		candidate := ip
		switch len(block.IP) {
		case net.IPv4len:
			if ip4 := ip.To4(); ip4 != nil {
				candidate = ip4
			} else {
				continue
			}
		case net.IPv6len:
			candidate = ip.To16()
			if candidate == nil {
				continue
			}
		}
		if block.Contains(candidate) {
			return true
		}
	}
	return false
}

// selectPreferredIP picks the first usable public IPv4 from the candidate
// list, falling back to the first public IPv6.
func selectPreferredIP(values []string) string {
	var ipv6Fallback string

	for _, raw := range values {
		clean, parsed := normalizeIP(raw)
		if parsed == nil || isPrivateIP(parsed) {
			continue
		}
		if parsed.To4() != nil {
			return clean
		}
		if ipv6Fallback == "" {
			ipv6Fallback = clean
		}
	}
	return ipv6Fallback
}

func normalizeIP(raw string) (string, net.IP) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"")
	if clean == "" {
		return "", nil
	}

	// Drop zone identifier (fe80::1%eth0)
	if percent := strings.Index(clean, "%"); percent != -1 {
		clean = clean[:percent]
	}

	if addrPort, err := netip.ParseAddrPort(clean); err == nil {
		addr := addrPort.Addr()
		if addr.Is4In6() {
			addr = addr.Unmap()
		}
		ipStr := addr.String()
		return ipStr, net.ParseIP(ipStr)
	}

	trimmed := strings.TrimSuffix(strings.TrimPrefix(clean, "["), "]")
	if addr, err := netip.ParseAddr(trimmed); err == nil {
		if addr.Is4In6() {
			addr = addr.Unmap()
		}
		ipStr := addr.String()
		return ipStr, net.ParseIP(ipStr)
	}

	if host, _, err := net.SplitHostPort(clean); err == nil {
		return normalizeIP(host)
	}

	return "", nil
}

// parseForwardedHeader extracts for= values from an RFC 7239 header.
func parseForwardedHeader(header string) []string {
	var candidates []string
	for _, entry := range strings.Split(header, ",") {
		for _, part := range strings.Split(entry, ";") {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(strings.ToLower(part), "for=") {
				candidates = append(candidates, strings.TrimPrefix(part, "for="))
			}
		}
	}
	return candidates
}

// generateETag creates a strong ETag from content using SHA-256.
func generateETag(content []byte) string {
	hash := sha256.Sum256(content)
	return `"` + hex.EncodeToString(hash[:]) + `"`
}
