// Package sentry provides data scrubbing utilities for Sentry events
// so Spotify tokens, identity tokens and OAuth codes never leave the process.
package sentry

import (
	"net/url"
	"strings"

	"github.com/getsentry/sentry-go"
)

const filtered = "[Filtered]"

// sensitiveHeaders are HTTP headers that should be redacted from Sentry events.
var sensitiveHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"Set-Cookie":    true,
}

// sensitiveKeys are field or query parameter names that may carry secrets.
var sensitiveKeys = map[string]bool{
	"token":         true,
	"accesstoken":   true,
	"refreshtoken":  true,
	"access_token":  true,
	"refresh_token": true,
	"code":          true,
	"state":         true,
	"secret":        true,
	"jwt":           true,
	"authorization": true,
	"cookie":        true,
}

func isSensitive(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

// ScrubEvent removes sensitive data from a Sentry event before it is sent.
// It redacts sensitive headers and query parameters, strips request bodies,
// and scrubs tags, extra data and breadcrumbs.
func ScrubEvent(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if event.Request != nil {
		for header := range event.Request.Headers {
			if sensitiveHeaders[header] {
				event.Request.Headers[header] = filtered
			}
		}
		// Bodies may hold prompts and multipart audio
		event.Request.Data = ""
		event.Request.Cookies = ""
		event.Request.QueryString = scrubQuery(event.Request.QueryString)
		event.Request.URL = scrubURL(event.Request.URL)
	}

	for key := range event.Tags {
		if isSensitive(key) {
			event.Tags[key] = filtered
		}
	}

	for key := range event.Extra {
		if isSensitive(key) {
			event.Extra[key] = filtered
		}
	}

	for i := range event.Breadcrumbs {
		for key, value := range event.Breadcrumbs[i].Data {
			if isSensitive(key) {
				event.Breadcrumbs[i].Data[key] = filtered
				continue
			}
			if s, ok := value.(string); ok && key == "url" {
				event.Breadcrumbs[i].Data[key] = scrubURL(s)
			}
		}
	}

	return event
}

// ScrubTransaction applies the same scrubbing logic to transaction events.
func ScrubTransaction(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	return ScrubEvent(event, hint)
}

// scrubQuery filters sensitive values in a raw query string. Unparseable
// input is dropped entirely.
func scrubQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return filtered
	}
	for key := range values {
		if isSensitive(key) {
			values[key] = []string{filtered}
		}
	}
	return values.Encode()
}

func scrubURL(raw string) string {
	if raw == "" || !strings.Contains(raw, "?") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return filtered
	}
	u.RawQuery = scrubQuery(u.RawQuery)
	return u.String()
}
