package mqtt

import (
	"regexp"
	"strings"

	"github.com/reowatch/reowatch/internal/events"
)

// idSanitizer replaces characters that are not valid in topic levels or
// Home Assistant identifiers.
var idSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeID ensures the ID contains only valid characters for MQTT topics and HA entity IDs.
func SanitizeID(id string) string {
	sanitized := idSanitizer.ReplaceAllString(id, "_")
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "unknown"
	}
	return sanitized
}

// Topics builds topic names under a common prefix.
type Topics struct {
	Prefix string
}

func (t Topics) join(levels ...string) string {
	prefix := strings.TrimSuffix(t.Prefix, "/")
	if prefix == "" {
		return strings.Join(levels, "/")
	}
	return prefix + "/" + strings.Join(levels, "/")
}

// Event is <prefix>/<camera>/<kind>.
func (t Topics) Event(camera string, kind events.Kind) string {
	return t.join(SanitizeID(camera), string(kind))
}

// Person is the retained ON/OFF state topic for camera.
func (t Topics) Person(camera string) string {
	return t.join(SanitizeID(camera), "person")
}

// Status is the availability topic, also used as the last will.
func (t Topics) Status() string {
	return t.join("status")
}
