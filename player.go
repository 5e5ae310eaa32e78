package filerelay

import (
	"net/url"
	"strings"
)

// PlayerURL builds the address of the external web player for a link:
// <base>/player?url=<link>&name=<name>&type=<kind>. Every reserved
// character is percent encoded, spaces included.
func PlayerURL(base, link, name string, kind MediaKind) string {
	if kind == "" {
		kind = MediaDocument
	}

	return strings.TrimSuffix(base, "/") + "/player" +
		"?url=" + escapeComponent(link) +
		"&name=" + escapeComponent(name) +
		"&type=" + escapeComponent(string(kind))
}

func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
