package media

import "net/url"

// SanitizeURI strips credentials from a source URI so it can be logged
// or returned by the API. Unparseable strings pass through unchanged.
func SanitizeURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.User = nil
	return u.String()
}
