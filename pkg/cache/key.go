package cache

import (
	"net/url"
	"strings"
)

// Normalize returns the cache key for a resource URL: the URL with its
// query string and fragment removed.
//
// Example:
//
//	https://media.example.com/a/track.mp3?token=abc -> https://media.example.com/a/track.mp3
func Normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
			return rawURL[:i]
		}
		return rawURL
	}

	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// KeyPath returns the path component of a cache key, used for prefix
// matching against in-flight fetches.
func KeyPath(key string) string {
	u, err := url.Parse(key)
	if err != nil {
		return key
	}
	return u.Path
}
