package jid

import (
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// legacyUserServer is the user suffix some gateway builds still report.
const legacyUserServer = types.LegacyUserServer

// LocalPart returns the part of a JID before the server suffix.
// Strings without a server are returned unchanged.
func LocalPart(raw string) string {
	if i := strings.IndexByte(raw, '@'); i >= 0 {
		return raw[:i]
	}
	return raw
}

// NormalizePhone derives a phone-number string from a participant JID by
// dropping the user server suffix. Device suffixes are dropped too.
func NormalizePhone(raw string) string {
	parsed, err := types.ParseJID(raw)
	if err == nil && (parsed.Server == types.DefaultUserServer || parsed.Server == legacyUserServer) {
		return parsed.User
	}
	trimmed := strings.TrimSuffix(raw, "@"+types.DefaultUserServer)
	return strings.TrimSuffix(trimmed, "@"+legacyUserServer)
}

// IsGroup reports whether the raw JID addresses a group chat.
func IsGroup(raw string) bool {
	parsed, err := types.ParseJID(raw)
	if err != nil {
		return strings.HasSuffix(raw, "@"+types.GroupServer)
	}
	return parsed.Server == types.GroupServer
}

// IsUser reports whether the raw JID addresses an individual.
func IsUser(raw string) bool {
	parsed, err := types.ParseJID(raw)
	if err != nil {
		return false
	}
	switch parsed.Server {
	case types.DefaultUserServer, legacyUserServer, types.HiddenUserServer:
		return true
	}
	return false
}

// FirstNonEmpty returns the first argument that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
