package kouhai

import (
	"strconv"
	"strings"

	"git.sr.ht/~rockorager/vaxis"

	"github.com/kouhai-chat/kouhai/roster"
)

// rolesFromTags decodes the badge and user-type tags of one message into role
// updates scoped to channel.  Only tags actually present produce an update, so
// a message without a "subscriber" tag never clears an established flag.
func rolesFromTags(tags map[string]string) roster.Roles {
	var roles roster.Roles
	if v, ok := tags["mod"]; ok {
		roles.Op = boolPtr(v == "1")
	}
	if v, ok := tags["subscriber"]; ok {
		roles.Subscriber = boolPtr(v == "1")
	}
	if v, ok := tags["turbo"]; ok {
		roles.Turbo = boolPtr(v == "1")
	}
	if v, ok := tags["user-type"]; ok {
		switch v {
		case "staff":
			roles.Staff = boolPtr(true)
		case "admin":
			roles.Admin = boolPtr(true)
		case "global_mod":
			roles.GlobalMod = boolPtr(true)
		}
	}
	for _, badge := range strings.Split(tags["badges"], ",") {
		name, _, _ := strings.Cut(badge, "/")
		switch name {
		case "moderator":
			roles.Op = boolPtr(true)
		case "subscriber", "founder":
			roles.Subscriber = boolPtr(true)
		case "staff":
			roles.Staff = boolPtr(true)
		case "admin":
			roles.Admin = boolPtr(true)
		case "global_mod":
			roles.GlobalMod = boolPtr(true)
		case "turbo":
			roles.Turbo = boolPtr(true)
		}
	}
	return roles
}

func boolPtr(v bool) *bool { return &v }

// colorFromTag parses the "#RRGGBB" color tag.  Malformed values are reported
// as not ok and the user keeps their assigned color.
func colorFromTag(tag string) (vaxis.Color, bool) {
	if len(tag) != 7 || tag[0] != '#' {
		return 0, false
	}
	hex, err := strconv.ParseUint(tag[1:], 16, 32)
	if err != nil {
		return 0, false
	}
	return vaxis.HexColor(uint32(hex)), true
}

// emoteSetsFromTag splits the comma-separated "emote-sets" tag.
func emoteSetsFromTag(tag string) []string {
	if tag == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(tag, ",") {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// intFromTag parses a numeric tag value, returning ok=false for missing or
// malformed values so the caller can skip just that field.
func intFromTag(tags map[string]string, key string) (int, bool) {
	v, ok := tags[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
