package validation

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// HostLabelRegex matches a single DNS label (RFC 1123).
	HostLabelRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

	// RobotIDRegex matches robot part ids issued by the cloud.
	RobotIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateHostLabel validates a single DNS label such as an mDNS instance name.
func ValidateHostLabel(label string) error {
	if label == "" {
		return fmt.Errorf("host label is required")
	}
	if !HostLabelRegex.MatchString(label) {
		return fmt.Errorf("invalid host label %q", label)
	}
	return nil
}

// ValidateFQDN validates a dotted host name. A trailing dot is allowed.
func ValidateFQDN(fqdn string) error {
	name := strings.TrimSuffix(fqdn, ".")
	if name == "" {
		return fmt.Errorf("fqdn is required")
	}
	if len(name) > 253 {
		return fmt.Errorf("fqdn is too long (max 253 characters)")
	}
	for _, label := range strings.Split(name, ".") {
		if err := ValidateHostLabel(label); err != nil {
			return fmt.Errorf("invalid fqdn %q: %w", fqdn, err)
		}
	}
	return nil
}

// ValidatePort validates a TCP/UDP port number.
func ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", port)
	}
	return nil
}

// ValidateIP validates a textual IPv4 or IPv6 address.
func ValidateIP(ip string) error {
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("invalid IP address %q", ip)
	}
	return nil
}

// ValidateRobotID validates a robot part id.
func ValidateRobotID(id string) error {
	if id == "" {
		return fmt.Errorf("robot ID is required")
	}
	if len(id) > 100 {
		return fmt.Errorf("robot ID is too long (max 100 characters)")
	}
	if !RobotIDRegex.MatchString(id) {
		return fmt.Errorf("invalid robot ID format")
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateICEURL validates a STUN or TURN server URL.
func ValidateICEURL(urlStr string) error {
	for _, scheme := range []string{"stun:", "stuns:", "turn:", "turns:"} {
		if rest, ok := strings.CutPrefix(urlStr, scheme); ok {
			if rest == "" {
				return fmt.Errorf("ICE URL %q has no host", urlStr)
			}
			return nil
		}
	}
	return fmt.Errorf("invalid ICE URL scheme %q (must be stun, stuns, turn, or turns)", urlStr)
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
