// Package canon normalizes article URLs and titles so the same story fetched
// through different links maps to one identity.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"slices"
	"strings"
	"unicode"
)

// trackingParams are dropped from query strings. Keys are compared lowercased;
// any key starting with "utm_" is dropped as well.
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"dclid":   true,
	"msclkid": true,
	"mc_cid":  true,
	"mc_eid":  true,
	"igshid":  true,
	"ref":     true,
	"ref_src": true,
	"cmpid":   true,
	"ocid":    true,
	"_ga":     true,
	"yclid":   true,
	"s_kwcid": true,
	"spm":     true,
}

// IsTrackingParam reports whether a query key carries tracking data only.
func IsTrackingParam(key string) bool {
	k := strings.ToLower(key)
	return strings.HasPrefix(k, "utm_") || trackingParams[k]
}

// Canonicalize returns the canonical form of an article URL. It is idempotent.
func Canonicalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	for range maxRedirects {
		target := unwrapRedirect(u)
		if target == nil {
			break
		}
		u = target
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimSuffix(strings.TrimSuffix(host, ":80"), ":443")
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	u.RawQuery = cleanQuery(u.RawQuery)
	u.ForceQuery = false

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""

	return u.String()
}

// maxRedirects bounds how many nested redirect wrappers are peeled off.
const maxRedirects = 5

// parse accepts absolute URLs and bare "host/path" links without a scheme.
func parse(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err == nil && u.Host != "" {
		return u, nil
	}
	if !strings.Contains(raw, "://") && looksLikeHost(raw) {
		if u, err := url.Parse("https://" + raw); err == nil && u.Host != "" {
			return u, nil
		}
	}
	return nil, errNotURL
}

var errNotURL = errors.New("not an absolute url")

func looksLikeHost(raw string) bool {
	host, _, _ := strings.Cut(raw, "/")
	host, _, _ = strings.Cut(host, "?")
	return strings.Contains(host, ".") && !strings.ContainsAny(host, " \t")
}

// cleanQuery drops tracking pairs from a raw query and sorts the rest.
// Pairs are kept verbatim so separators such as ';' survive.
func cleanQuery(raw string) string {
	if raw == "" {
		return ""
	}
	var kept []string
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if IsTrackingParam(key) {
			continue
		}
		kept = append(kept, pair)
	}
	slices.Sort(kept)
	return strings.Join(kept, "&")
}

// unwrapRedirect extracts the target of google.com/url?q=... style links.
func unwrapRedirect(u *url.URL) *url.URL {
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	if host != "google.com" && host != "news.google.com" {
		return nil
	}
	if u.Path != "/url" {
		return nil
	}
	q := u.Query()
	for _, key := range []string{"url", "q"} {
		if v := q.Get(key); v != "" {
			if t, err := url.Parse(v); err == nil && t.Host != "" && (t.Scheme == "http" || t.Scheme == "https") {
				return t
			}
		}
	}
	return nil
}

// ID returns the stable identifier for a URL: the first 16 hex characters of
// the SHA-256 of its canonical form.
func ID(raw string) string {
	sum := sha256.Sum256([]byte(Canonicalize(raw)))
	return hex.EncodeToString(sum[:])[:16]
}

// Host returns the canonical host of a URL without "www.", or "" when unparsable.
func Host(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// maxSuffixWords bounds how long a trailing " - Publisher" segment may be.
const maxSuffixWords = 5

// NormalizeTitle lowercases a headline, removes a trailing publisher segment
// (" - Publisher" or " | Publisher"), strips punctuation and collapses spaces.
func NormalizeTitle(title string) string {
	t := strings.TrimSpace(title)
	for _, sep := range []string{" - ", " | ", " – ", " — "} {
		if i := strings.LastIndex(t, sep); i > 0 {
			suffix := t[i+len(sep):]
			if n := len(strings.Fields(suffix)); n > 0 && n <= maxSuffixWords {
				t = t[:i]
			}
			break
		}
	}

	var b strings.Builder
	b.Grow(len(t))
	for _, r := range strings.ToLower(t) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizePublisher lowercases and trims a publisher name for comparison.
func NormalizePublisher(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	p = strings.TrimPrefix(p, "www.")
	return strings.Join(strings.Fields(p), " ")
}
