package util

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

var ipv4CIDR = regexp.MustCompile(`^([0-9]{1,3}\.){3}[0-9]{1,3}(/([0-9]|[1-2][0-9]|3[0-2]))?$`)

// CheckValidIpv4 reports whether ip is a dotted IPv4 address with an optional prefix length,
// e.g. 10.0.0.5/24.
func CheckValidIpv4(ip string) bool {
	if !ipv4CIDR.MatchString(ip) {
		return false
	}

	ipAddress := strings.Split(ip, "/")[0]
	for _, part := range strings.Split(ipAddress, ".") {
		if val, err := strconv.Atoi(part); err != nil || val < 0 || val > 255 {
			return false
		}
	}
	return true
}

// NormalizeAddr checks an interface address (IPv4 or IPv6, with or without prefix length)
// and returns it in the form handed to "ip addr".
func NormalizeAddr(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if strings.Contains(addr, "/") {
		ip, ipNet, err := net.ParseCIDR(addr)
		if err != nil {
			return "", fmt.Errorf("invalid address %q: %w", addr, err)
		}
		ones, _ := ipNet.Mask.Size()
		return fmt.Sprintf("%s/%d", ip.String(), ones), nil
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	return ip.String(), nil
}

// ParseMac parses a hardware address such as 00:11:22:33:44:55.
func ParseMac(mac string) (net.HardwareAddr, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(mac))
	if err != nil {
		return nil, fmt.Errorf("invalid hardware address %q: %w", mac, err)
	}
	return hw, nil
}
