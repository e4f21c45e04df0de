package geocode

import (
	"regexp"
	"strings"
)

var stateNames = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas", "CA": "California",
	"CO": "Colorado", "CT": "Connecticut", "DE": "Delaware", "FL": "Florida", "GA": "Georgia",
	"HI": "Hawaii", "ID": "Idaho", "IL": "Illinois", "IN": "Indiana", "IA": "Iowa",
	"KS": "Kansas", "KY": "Kentucky", "LA": "Louisiana", "ME": "Maine", "MD": "Maryland",
	"MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota", "MS": "Mississippi", "MO": "Missouri",
	"MT": "Montana", "NE": "Nebraska", "NV": "Nevada", "NH": "New Hampshire", "NJ": "New Jersey",
	"NM": "New Mexico", "NY": "New York", "NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio",
	"OK": "Oklahoma", "OR": "Oregon", "PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina",
	"SD": "South Dakota", "TN": "Tennessee", "TX": "Texas", "UT": "Utah", "VT": "Vermont",
	"VA": "Virginia", "WA": "Washington", "WV": "West Virginia", "WI": "Wisconsin", "WY": "Wyoming",
}

// abbreviations seen in news copy that are not postal codes.
var stateAliases = map[string]string{
	"tex": "Texas", "okla": "Oklahoma", "ark": "Arkansas", "n.m": "New Mexico",
}

var (
	qualifier   = regexp.MustCompile(`(?i)^(?:just\s+)?(?:near|outside(?:\s+of)?|(?:north|south|east|west)(?:east|west)?\s+of|in)\s+`)
	parenthetic = regexp.MustCompile(`\s*\([^)]*\)`)
	countyAbbr  = regexp.MustCompile(`(?i)\b(co|cnty)\.?$`)
	countyWord  = regexp.MustCompile(`(?i)\bcounty$`)
	areaWords   = regexp.MustCompile(`(?i)\b(?:area|region|metro|metroplex)$`)
)

// Query is cleaned location text ready for a provider.
type Query struct {
	Text      string // "Midlothian, Texas"
	County    bool   // the place part names a county
	StateOnly bool   // nothing more specific than a state
}

// expandState maps "TX", "Tex." or "texas" to "Texas", or "" when s is not a state.
func expandState(s string) string {
	t := strings.TrimSuffix(strings.TrimSpace(s), ".")
	if name, ok := stateNames[strings.ToUpper(t)]; ok && len(t) == 2 {
		return name
	}
	if name, ok := stateAliases[strings.ToLower(t)]; ok {
		return name
	}
	for _, name := range stateNames {
		if strings.EqualFold(t, name) {
			return name
		}
	}
	return ""
}

// Clean normalizes free-text location: qualifiers such as "near" or
// "outside of" are dropped, "Co." becomes "County", and state
// abbreviations are expanded. defaultState (a postal code) is appended
// when no state is present. Empty input yields an empty Query.
func Clean(text, defaultState string) Query {
	s := parenthetic.ReplaceAllString(text, "")
	s = strings.Join(strings.Fields(s), " ")
	for {
		t := qualifier.ReplaceAllString(s, "")
		if t == s {
			break
		}
		s = t
	}
	s = strings.Trim(s, " ,.;")
	if s == "" || strings.EqualFold(s, "unknown") {
		return Query{}
	}

	var parts []string
	state := ""
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if st := expandState(p); st != "" {
			if state == "" {
				state = st
			}
			continue
		}
		if strings.EqualFold(p, "usa") || strings.EqualFold(p, "us") || strings.EqualFold(p, "united states") {
			continue
		}
		parts = append(parts, p)
	}

	q := Query{}
	if len(parts) > 0 {
		place := parts[0]
		place = countyAbbr.ReplaceAllString(place, "County")
		place = areaWords.ReplaceAllString(place, "")
		place = strings.TrimSpace(place)
		q.County = countyWord.MatchString(place)
		parts[0] = place
		if place == "" {
			parts = parts[1:]
		}
	}

	if state == "" && defaultState != "" {
		state = stateNames[strings.ToUpper(defaultState)]
	}
	if state != "" {
		parts = append(parts, state)
	}
	q.StateOnly = len(parts) == 1 && state != ""
	q.Text = strings.Join(parts, ", ")
	return q
}
