package classify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RulesVersion identifies the built-in rule set. Bump it whenever a list changes.
const RulesVersion = "dc-rules-2025.03"

// Rules are the keyword lists behind classification. Matching is
// case-insensitive on whole words.
type Rules struct {
	Version      string   `yaml:"version"`
	Noise        []string `yaml:"noise"`
	DataCenter   []string `yaml:"data_center"`
	Places       []string `yaml:"places"`
	Companies    []string `yaml:"companies"`
	Construction []string `yaml:"construction"`
}

// DefaultRules returns the built-in rule set.
func DefaultRules() *Rules {
	return &Rules{
		Version: RulesVersion,
		Noise: []string{
			"stock price", "stock market", "share price", "shares rose", "shares fell",
			"shares jumped", "earnings", "quarterly results", "dividend", "price target",
			"analyst rating", "short interest", "nasdaq", "nyse", "webinar", "podcast",
			"job opening", "hiring event", "obituary", "data breach", "ransomware",
			"cyberattack", "outage", "horoscope", "recipe", "etf",
		},
		DataCenter: []string{
			"data center", "data centers", "data centre", "data centres", "datacenter",
			"datacenters", "data-center", "hyperscale", "hyperscaler", "server farm",
			"colocation", "ai campus", "compute campus", "ai factory",
		},
		Places: []string{
			"texas", "tx", "oklahoma", "okla", "county",
			"abilene", "allen", "amarillo", "austin", "bastrop", "brownsville", "cleburne",
			"corpus christi", "corsicana", "dallas", "denton", "el paso", "ellis county",
			"fort worth", "frisco", "garland", "granbury", "houston", "hutto", "irving",
			"kyle", "lancaster", "laredo", "lubbock", "mckinney", "mesquite", "midland",
			"midlothian", "mineral wells", "odessa", "pecos", "plano", "red oak",
			"round rock", "san antonio", "san marcos", "sherman", "stephenville", "taylor",
			"temple", "waco", "wilmer", "ennis", "waxahachie", "lockhart", "big spring",
			"oklahoma city", "tulsa", "pryor", "stillwater", "shawnee", "muskogee", "norman",
		},
		Companies: []string{
			"google", "alphabet", "microsoft", "meta", "amazon", "aws", "oracle", "openai",
			"stargate", "crusoe", "cyrusone", "qts", "digital realty", "equinix", "aligned",
			"vantage", "compass datacenters", "stack infrastructure", "edgecore", "skybox",
			"switch", "tract", "lancium", "core scientific", "riot platforms", "iren",
			"applied digital", "coreweave", "sabey", "databank", "ntt", "novva", "rowan",
			"galaxy digital", "poolside", "xai", "t5", "yondr", "related digital",
			"blackstone", "cloudhq", "prime data centers", "cielo", "energy transfer",
		},
		Construction: []string{
			"breaks ground", "broke ground", "groundbreaking", "construction", "under construction",
			"approved", "approves", "approval", "permit", "permits", "rezoning", "rezone",
			"zoning", "tax abatement", "abatement", "incentive", "incentives", "plans to build",
			"will build", "to build", "announced plans", "announces", "proposed", "site plan",
			"filed", "land purchase", "acquires land", "expansion", "interconnection",
		},
	}
}

// LoadRules reads a YAML rule set. Lists missing from the file keep their
// built-in values; a file without a version is tagged "<builtin>+custom".
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var custom Rules
	if err := yaml.Unmarshal(data, &custom); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}

	r := DefaultRules()
	if custom.Version != "" {
		r.Version = custom.Version
	} else {
		r.Version = RulesVersion + "+custom"
	}
	for _, f := range []struct {
		dst *[]string
		src []string
	}{
		{&r.Noise, custom.Noise},
		{&r.DataCenter, custom.DataCenter},
		{&r.Places, custom.Places},
		{&r.Companies, custom.Companies},
		{&r.Construction, custom.Construction},
	} {
		if len(f.src) > 0 {
			*f.dst = f.src
		}
	}
	return r, nil
}
