// Package privacy keeps camera credentials and session tokens out of logs,
// error messages and telemetry.
package privacy

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	urlPattern = regexp.MustCompile(`\b(?:https?|rtsp|rtsps|rtmp|mqtt|tcp|ssl)://\S+`)

	// key=value pairs that carry secrets in camera API query strings and ffmpeg arguments
	secretParamPattern = regexp.MustCompile(`(?i)\b(token|password|passwd|pwd|user|username)=([^&\s"']+)`)

	ipv4Pattern = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
)

const redacted = "[REDACTED]"

// SanitizeRTSPUrl strips credentials and path from an RTSP URL, keeping scheme, host and port.
// Non-RTSP input is returned unchanged.
func SanitizeRTSPUrl(source string) string {
	if !strings.HasPrefix(source, "rtsp://") && !strings.HasPrefix(source, "rtsps://") {
		return source
	}

	schemeEnd := strings.Index(source, "://") + len("://")
	rest := source[schemeEnd:]

	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		rest = rest[:slash]
	}
	if at := strings.LastIndexByte(rest, '@'); at >= 0 {
		rest = rest[at+1:]
	}

	return source[:schemeEnd] + rest
}

// RedactURL removes user info and secret query values from a URL, keeping host and path.
func RedactURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return secretParamPattern.ReplaceAllString(rawURL, "$1="+redacted)
	}

	if parsed.User != nil {
		parsed.User = url.User(redacted)
	}

	out := parsed.String()
	// url.String escapes the brackets in user info
	out = strings.Replace(out, url.User(redacted).String(), redacted, 1)
	return secretParamPattern.ReplaceAllString(out, "$1="+redacted)
}

// ScrubMessage redacts credentials in every URL and key=value secret found in message.
func ScrubMessage(message string) string {
	scrubbed := urlPattern.ReplaceAllStringFunc(message, RedactURL)
	return secretParamPattern.ReplaceAllString(scrubbed, "$1="+redacted)
}

// ScrubForTelemetry replaces every URL in message with an opaque hash so hosts
// never leave the machine.
func ScrubForTelemetry(message string) string {
	scrubbed := urlPattern.ReplaceAllStringFunc(message, AnonymizeURL)
	return secretParamPattern.ReplaceAllString(scrubbed, "$1="+redacted)
}

// RedactArgs returns a copy of a command line with credentials removed from URL arguments.
func RedactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if urlPattern.MatchString(arg) {
			out[i] = RedactURL(arg)
			continue
		}
		out[i] = arg
	}
	return out
}

// AnonymizeURL converts a URL to a stable hash that preserves scheme, host class and port
func AnonymizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		hash := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", hash[:8])
	}

	parts := []string{parsed.Scheme}
	if host := parsed.Hostname(); host != "" {
		parts = append(parts, categorizeHost(host))
	}
	if port := parsed.Port(); port != "" {
		parts = append(parts, "port-"+port)
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, ":") + parsed.Path))
	return fmt.Sprintf("url-%x", hash[:12])
}

// GenerateSystemID creates a random identifier of the form XXXX-XXXX-XXXX
func GenerateSystemID() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	id := hex.EncodeToString(b)
	return strings.ToUpper(fmt.Sprintf("%s-%s-%s", id[0:4], id[4:8], id[8:12])), nil
}

// categorizeHost anonymizes hostnames while preserving useful categorization
func categorizeHost(host string) string {
	switch {
	case host == "localhost" || host == "127.0.0.1" || host == "::1":
		return "localhost"
	case isPrivateIP(host):
		return "private-ip"
	case ipv4Pattern.MatchString(host) || strings.Contains(host, ":"):
		return "public-ip"
	}

	if parts := strings.Split(host, "."); len(parts) >= 2 {
		return "domain-" + parts[len(parts)-1]
	}
	return "unknown-host"
}

func isPrivateIP(host string) bool {
	host = strings.ToLower(host)
	if strings.HasPrefix(host, "10.") || strings.HasPrefix(host, "192.168.") ||
		strings.HasPrefix(host, "169.254.") || strings.HasPrefix(host, "fc00:") ||
		strings.HasPrefix(host, "fd") || strings.HasPrefix(host, "fe80:") {
		return true
	}
	for i := 16; i <= 31; i++ {
		if strings.HasPrefix(host, fmt.Sprintf("172.%d.", i)) {
			return true
		}
	}
	return false
}
