// Package redact masks credentials in strings before they are logged.
// Backend locations are URI-like prefixes (redis://, postgres://,
// mongodb://) that routinely embed passwords; nothing here should ever
// reach a log line verbatim.
package redact

import (
	"net/url"
	"regexp"
)

// Placeholder substituted for masked material.
const Placeholder = "xxxxx"

// connRegex catches scheme://user:password@ fragments inside strings
// that do not parse as a single URL (compound DSNs, error text).
var connRegex = regexp.MustCompile(`(\w+://[^:/@\s]+):([^@/\s]+)@`)

// Error returns err's message with any embedded credentials masked.
// Driver errors often quote the DSN they failed to reach.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return URL(err.Error())
}

// URL returns s with any userinfo password replaced. Strings that do
// not look like URLs pass through unchanged, so it is safe to apply to
// every backend location, including plain directories.
func URL(s string) string {
	u, err := url.Parse(s)
	if err == nil && u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), Placeholder)
			return u.String()
		}
		return s
	}
	return connRegex.ReplaceAllString(s, "${1}:"+Placeholder+"@")
}
