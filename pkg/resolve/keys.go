package resolve

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	nonAlnum = regexp.MustCompile(`[^a-z0-9 ]+`)

	// companySuffixes are dropped from the end of company names.
	companySuffixes = []string{
		"inc", "incorporated", "llc", "corp", "corporation", "co", "company", "ltd", "lp",
		"holdings", "group", "data centers", "data center", "datacenters",
	}

	locationPrefixes = []string{"near ", "outside of ", "outside ", "north of ", "south of ", "east of ", "west of "}

	states = map[string]bool{
		"tx": true, "texas": true, "ok": true, "oklahoma": true, "okla": true, "tex": true,
		"nm": true, "new mexico": true, "la": true, "louisiana": true, "usa": true, "us": true,
	}
)

func squash(s string) string {
	s = nonAlnum.ReplaceAllString(strings.ToLower(s), " ")
	return strings.Join(strings.Fields(s), " ")
}

// CompanyKey normalizes a company name for matching: "Google LLC" and
// "google" share a key.
func CompanyKey(company string) string {
	k := squash(company)
	for changed := true; changed; {
		changed = false
		for _, suf := range companySuffixes {
			if k != suf && strings.HasSuffix(k, " "+suf) {
				k = strings.TrimSuffix(k, " "+suf)
				changed = true
			}
		}
	}
	if k == "unknown" {
		return ""
	}
	return k
}

// LocationKey reduces location text to its place token: the first
// comma-separated part with qualifiers and state names removed.
// "near Midlothian, TX" and "Midlothian, Texas" share a key.
func LocationKey(location string) string {
	l := strings.ToLower(strings.TrimSpace(location))
	for _, p := range locationPrefixes {
		l = strings.TrimPrefix(l, p)
	}
	if i := strings.IndexByte(l, ','); i >= 0 {
		l = l[:i]
	}
	k := squash(l)
	if states[k] || k == "unknown" {
		return ""
	}
	return k
}

// projectID derives a stable identifier from the matching key.
func projectID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "prj-" + hex.EncodeToString(sum[:])[:16]
}
