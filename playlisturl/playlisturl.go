// Package playlisturl validates and canonicalizes YouTube playlist URLs and
// derives the stable dashboard identifier used as the public share path.
package playlisturl

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned by Normalize for URLs that are not recognizable
// public playlist URLs (wrong host, wrong path, missing or empty list id).
type ErrInvalidURL struct {
	URL    string
	Reason string
}

func (e *ErrInvalidURL) Error() string {
	return fmt.Sprintf("invalid playlist url %q: %s", e.URL, e.Reason)
}

// recognized YouTube hosts (scheme-insensitive, www-insensitive).
var allowedHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

// Normalize returns the canonical form of a playlist URL: https scheme,
// www.youtube.com host, lower-cased /playlist path, and only the list
// parameter retained. Position (index=) and timestamp (t=) parameters are
// dropped so equivalent links collapse to one cache key.
// Normalize is idempotent: Normalize(Normalize(u)) == Normalize(u).
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &ErrInvalidURL{URL: raw, Reason: "empty"}
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", &ErrInvalidURL{URL: raw, Reason: "unparseable"}
	}
	host := strings.ToLower(u.Host)
	if !allowedHosts[host] {
		return "", &ErrInvalidURL{URL: raw, Reason: "unrecognized host"}
	}
	path := strings.ToLower(strings.TrimSuffix(u.Path, "/"))
	if path != "/playlist" {
		return "", &ErrInvalidURL{URL: raw, Reason: "path is not /playlist"}
	}
	list := u.Query().Get("list")
	if list == "" {
		return "", &ErrInvalidURL{URL: raw, Reason: "missing list parameter"}
	}
	return "https://www.youtube.com/playlist?list=" + url.QueryEscape(list), nil
}

// Fingerprint derives the 16-character lowercase hex dashboard id from a
// canonical URL: the first 16 hex chars of SHA-256. Callers must pass the
// output of Normalize so equivalent URLs share an id.
func Fingerprint(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:16]
}

// ListID extracts the list= value from a canonical (or raw) playlist URL.
// Returns empty string when absent.
func ListID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Query().Get("list")
}
