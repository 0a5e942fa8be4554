// Package sanitize normalizes caller-supplied strings before they reach the
// store or a log line. Every bound here tracks a column width in the schema.
package sanitize

import (
	"fmt"
	"html"
	"net"
	"regexp"
	"strings"
)

const (
	// MaxDisplayNameLength bounds a participant display name after sanitization.
	MaxDisplayNameLength = 100
	// MaxMessageLength bounds a chat message after sanitization. Longer input
	// is rejected by the chat service, not truncated.
	MaxMessageLength = 2000
	// MaxPeerIDLength bounds a peer signaling id after sanitization.
	MaxPeerIDLength = 64
)

var (
	markupTags = regexp.MustCompile(`<[^>]*>`)
	peerIDJunk = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	nonHex     = regexp.MustCompile(`[^0-9a-f]`)
)

// DisplayName strips markup, entity-encodes what remains, trims surrounding
// whitespace and truncates to MaxDisplayNameLength characters. The result may
// be empty; the caller decides whether that is an error.
func DisplayName(raw string) string {
	return truncateRunes(clean(raw), MaxDisplayNameLength)
}

// MessageText strips markup, entity-encodes and trims a chat message. Length
// is deliberately not enforced here: the chat service rejects over-long
// messages instead of silently shortening them.
func MessageText(raw string) string {
	return clean(raw)
}

// PeerSignalingID reduces a peer signaling id to the opaque-identifier
// alphabet [A-Za-z0-9_-] and truncates to MaxPeerIDLength characters.
func PeerSignalingID(raw string) string {
	return truncateRunes(peerIDJunk.ReplaceAllString(raw, ""), MaxPeerIDLength)
}

// Token reduces raw token input to the lowercase hex alphabet. Callers check
// the resulting length; anything other than a full-length token is malformed
// and must not reach the store.
func Token(raw string) string {
	return nonHex.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), "")
}

// MaskIP hides the host part of an address for logging and audit events:
// the last IPv4 octet or the last four IPv6 groups are replaced. Unparseable
// input masks to "invalid".
func MaskIP(raw string) string {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil {
		return "invalid"
	}
	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.x", v4[0], v4[1], v4[2])
	}
	v6 := ip.To16()
	groups := make([]string, 4)
	for i := 0; i < 4; i++ {
		groups[i] = fmt.Sprintf("%x", uint16(v6[2*i])<<8|uint16(v6[2*i+1]))
	}
	return strings.Join(groups, ":") + ":x:x:x:x"
}

func clean(raw string) string {
	return strings.TrimSpace(html.EscapeString(markupTags.ReplaceAllString(raw, "")))
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
