package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// companies maps lowercase aliases to display names. Longer aliases are tried first.
var companies = map[string]string{
	"google":               "Google",
	"alphabet":             "Google",
	"microsoft":            "Microsoft",
	"meta":                 "Meta",
	"amazon web services":  "Amazon Web Services",
	"aws":                  "Amazon Web Services",
	"amazon":               "Amazon Web Services",
	"oracle":               "Oracle",
	"openai":               "OpenAI",
	"stargate":             "Stargate",
	"crusoe":               "Crusoe",
	"cyrusone":             "CyrusOne",
	"qts":                  "QTS",
	"digital realty":       "Digital Realty",
	"equinix":              "Equinix",
	"aligned data centers": "Aligned Data Centers",
	"vantage data centers": "Vantage Data Centers",
	"compass datacenters":  "Compass Datacenters",
	"stack infrastructure": "STACK Infrastructure",
	"edgecore":             "EdgeCore",
	"skybox":               "Skybox Datacenters",
	"lancium":              "Lancium",
	"core scientific":      "Core Scientific",
	"riot platforms":       "Riot Platforms",
	"applied digital":      "Applied Digital",
	"coreweave":            "CoreWeave",
	"sabey":                "Sabey Data Centers",
	"databank":             "DataBank",
	"novva":                "Novva",
	"galaxy digital":       "Galaxy Digital",
	"poolside":             "Poolside",
	"xai":                  "xAI",
	"yondr":                "Yondr",
	"related digital":      "Related Digital",
	"cloudhq":              "CloudHQ",
	"prime data centers":   "Prime Data Centers",
	"energy transfer":      "Energy Transfer",
}

var (
	companyPattern = aliasPattern(companies)

	// "Acme Corp plans ..." at the start of a headline.
	leadingCompany = regexp.MustCompile(`^((?:[A-Z][\w&.'-]*)(?:\s+[A-Z][\w&.'-]*){0,3})\s+(?:plans|announces|unveils|proposes|files|eyes|picks|selects|to build|will build|breaks ground|buys|acquires|expands)\b`)

	cityState = regexp.MustCompile(`\b(?:in|near|outside(?:\s+of)?|at)\s+((?:[A-Z][a-zA-Z.'-]+\s+){0,2}[A-Z][a-zA-Z.'-]+),\s*(Texas|TX|Tex|Oklahoma|OK|Okla)\b`)
	county    = regexp.MustCompile(`\b((?:[A-Z][a-zA-Z.'-]+\s+){0,2}County)\b(?:,\s*(Texas|TX|Oklahoma|OK))?`)

	projectNamed  = regexp.MustCompile(`\b(?:called|named|dubbed|known as)\s+(?:the\s+)?["“]?((?:[A-Z0-9][\w'-]*)(?:\s+[A-Z0-9][\w'-]*){0,4})`)
	projectCode   = regexp.MustCompile(`\b(Project\s+[A-Z][\w-]+)`)
	projectCampus = regexp.MustCompile(`\b((?:[A-Z][\w'-]*\s+){1,3}(?:Campus|Technology Park|Tech Park|Data Center Campus))\b`)

	powerValue = regexp.MustCompile(`(?i)\b(\d[\d,]*(?:\.\d+)?)\s*-?\s*(mw|megawatts?|gw|gigawatts?)\b`)
	areaValue  = regexp.MustCompile(`(?i)\b(\d[\d,]*(?:\.\d+)?)\s*-?\s*(million\s+)?(?:sq\.?\s*ft|square[- ]f(?:ee|oo)t)\b`)
	moneyValue = regexp.MustCompile(`(?i)\$\s?(\d[\d,]*(?:\.\d+)?)\s*(billion|million|bn|b|m)\b`)

	textDate = regexp.MustCompile(`\b(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\.?\s+\d{1,2},\s+\d{4}\b|\b\d{4}-\d{2}-\d{2}\b`)
)

// statusRules are checked in order; the first hit wins.
var statusRules = []struct {
	status string
	re     *regexp.Regexp
}{
	{"cancelled", regexp.MustCompile(`(?i)\b(?:cancel(?:s|ed|led)?|scrap(?:s|ped)|withdr[ae]w[ns]?|pulls? (?:out|plans)|abandon(?:s|ed)?)\b`)},
	{"operational", regexp.MustCompile(`(?i)\b(?:now operational|is operational|went live|goes live|comes online|came online|opens|opened)\b`)},
	{"under_construction", regexp.MustCompile(`(?i)\b(?:breaks ground|broke ground|groundbreaking|under construction|construction (?:began|begins|is underway|started))\b`)},
	{"approved", regexp.MustCompile(`(?i)\b(?:approved|approves|approval|granted|rezoning passed|abatement)\b`)},
	{"proposed", regexp.MustCompile(`(?i)\b(?:plans?|planned|proposed|proposes|announces|announced|considering|eyes|files|filed|to build|will build)\b`)},
}

var stateNames = map[string]string{
	"texas": "TX", "tex": "TX", "tx": "TX",
	"oklahoma": "OK", "okla": "OK", "ok": "OK",
}

func aliasPattern(m map[string]string) *regexp.Regexp {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, regexp.QuoteMeta(k))
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(keys, "|") + `)\b`)
}

// findCompany prefers a known developer, then a capitalized headline subject.
func findCompany(title, text string) string {
	for _, s := range []string{title, text} {
		if m := companyPattern.FindString(s); m != "" {
			return companies[strings.ToLower(m)]
		}
	}
	if m := leadingCompany.FindStringSubmatch(strings.TrimSpace(title)); m != nil {
		return strings.TrimRight(m[1], ".,'")
	}
	return ""
}

// findLocation returns "City, ST", "X County, ST" or "X County".
func findLocation(title, text string) string {
	for _, s := range []string{title, text} {
		if m := cityState.FindStringSubmatch(s); m != nil {
			return strings.TrimSpace(m[1]) + ", " + stateNames[strings.ToLower(m[2])]
		}
	}
	for _, s := range []string{title, text} {
		if m := county.FindStringSubmatch(s); m != nil {
			if m[2] != "" {
				return m[1] + ", " + stateNames[strings.ToLower(m[2])]
			}
			return m[1]
		}
	}
	return ""
}

func findProjectName(text string) string {
	for _, re := range []*regexp.Regexp{projectNamed, projectCode, projectCampus} {
		if m := re.FindStringSubmatch(text); m != nil {
			name := strings.TrimSpace(strings.Trim(m[1], `"”`))
			if name != "" && !strings.EqualFold(name, "data center campus") {
				return name
			}
		}
	}
	return ""
}

func parseNumber(s string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

// findPowerMW returns the largest stated capacity in megawatts.
func findPowerMW(text string) float64 {
	var best float64
	for _, m := range powerValue.FindAllStringSubmatch(text, -1) {
		v := parseNumber(m[1])
		if strings.HasPrefix(strings.ToLower(m[2]), "g") {
			v *= 1000
		}
		best = max(best, v)
	}
	return best
}

func findSqft(text string) float64 {
	var best float64
	for _, m := range areaValue.FindAllStringSubmatch(text, -1) {
		v := parseNumber(m[1])
		if m[2] != "" {
			v *= 1e6
		}
		best = max(best, v)
	}
	return best
}

func findInvestment(text string) float64 {
	var best float64
	for _, m := range moneyValue.FindAllStringSubmatch(text, -1) {
		v := parseNumber(m[1])
		switch strings.ToLower(m[2]) {
		case "billion", "bn", "b":
			v *= 1e9
		default:
			v *= 1e6
		}
		best = max(best, v)
	}
	return best
}

func findStatus(text string) string {
	for _, r := range statusRules {
		if r.re.MatchString(text) {
			return r.status
		}
	}
	return ""
}

// findDate returns the first date written in the text, else the publication date.
func findDate(text string, published time.Time) string {
	for _, s := range textDate.FindAllString(text, -1) {
		if t, err := dateparse.ParseIn(strings.Replace(s, ".", "", 1), time.UTC); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if !published.IsZero() {
		return published.UTC().Format("2006-01-02")
	}
	return ""
}
